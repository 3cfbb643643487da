package imagestore

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sort"
	"strconv"
	"strings"
	"time"

	"agrinix/internal/domain"
	"agrinix/internal/infra"
)

// ErrMissingCredentials indicates the Cloudinary client was configured without credentials.
var ErrMissingCredentials = errors.New("cloudinary: credentials are required")

// CloudinaryOptions configures the Cloudinary upload client.
type CloudinaryOptions struct {
	CloudName  string
	APIKey     string
	APISecret  string
	Folder     string
	BaseURL    string
	MaxBytes   int
	HTTPClient *http.Client
	Logger     *infra.Logger
	Now        func() time.Time
}

// Cloudinary uploads images with the signed upload API.
type Cloudinary struct {
	cloudName  string
	apiKey     string
	apiSecret  string
	folder     string
	baseURL    string
	maxBytes   int
	httpClient *http.Client
	logger     *infra.Logger
	now        func() time.Time
}

type uploadResponse struct {
	SecureURL string `json:"secure_url"`
	PublicID  string `json:"public_id"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewCloudinary constructs the client. Missing credentials are reported on Upload.
func NewCloudinary(opts CloudinaryOptions) *Cloudinary {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.cloudinary.com/v1_1"
	}
	folder := strings.Trim(strings.TrimSpace(opts.Folder), "/")
	if folder == "" {
		folder = "agrinix/crops"
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Cloudinary{
		cloudName:  strings.TrimSpace(opts.CloudName),
		apiKey:     strings.TrimSpace(opts.APIKey),
		apiSecret:  strings.TrimSpace(opts.APISecret),
		folder:     folder,
		baseURL:    baseURL,
		maxBytes:   opts.MaxBytes,
		httpClient: httpClient,
		logger:     infra.LoggerOrDiscard(opts.Logger),
		now:        now,
	}
}

// Upload sends data to Cloudinary and returns the secure URL and public id.
func (c *Cloudinary) Upload(ctx context.Context, data []byte, mimeType string) (domain.ImageRef, error) {
	if err := validate(data, c.maxBytes); err != nil {
		return domain.ImageRef{}, err
	}
	if c.cloudName == "" || c.apiKey == "" || c.apiSecret == "" {
		return domain.ImageRef{}, ErrMissingCredentials
	}

	params := map[string]string{
		"folder":    c.folder,
		"timestamp": strconv.FormatInt(c.now().Unix(), 10),
	}
	body, contentType, err := c.encode(params, data, mimeType)
	if err != nil {
		return domain.ImageRef{}, err
	}

	endpoint := fmt.Sprintf("%s/%s/image/upload", c.baseURL, c.cloudName)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return domain.ImageRef{}, fmt.Errorf("cloudinary: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.ImageRef{}, &UnavailableError{Provider: "cloudinary", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.ImageRef{}, &UnavailableError{Provider: "cloudinary", Err: err}
	}
	var parsed uploadResponse
	_ = json.Unmarshal(raw, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		err := fmt.Errorf("cloudinary: status %d: %s", resp.StatusCode, msg)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests {
			return domain.ImageRef{}, &UnavailableError{Provider: "cloudinary", Err: err}
		}
		return domain.ImageRef{}, err
	}
	if parsed.SecureURL == "" {
		return domain.ImageRef{}, &UnavailableError{Provider: "cloudinary", Err: errors.New("response missing secure_url")}
	}

	c.logger.Debug().
		Str("public_id", parsed.PublicID).
		Int("bytes", len(data)).
		Dur("took", time.Since(start)).
		Msg("cloudinary upload")
	return domain.ImageRef{URL: parsed.SecureURL, PublicID: parsed.PublicID}, nil
}

func (c *Cloudinary) encode(params map[string]string, data []byte, mimeType string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range params {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if err := w.WriteField("api_key", c.apiKey); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("signature", sign(params, c.apiSecret)); err != nil {
		return nil, "", err
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="upload`+extension(mimeType)+`"`)
	if mimeType != "" {
		header.Set("Content-Type", mimeType)
	}
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// sign builds the Cloudinary request signature: sorted key=value pairs joined
// by '&', followed by the API secret, hashed with SHA-1.
func sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return hex.EncodeToString(sum[:])
}

var _ domain.ImageStore = (*Cloudinary)(nil)
