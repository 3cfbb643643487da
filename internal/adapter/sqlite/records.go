package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"agrinix/internal/domain"
)

// RecordStore implements domain.RecordStore and domain.OwnerRegistry on SQLite.
type RecordStore struct {
	db *sql.DB
}

func (s *RecordStore) FindOwner(ctx context.Context, ownerID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`, ownerID).Scan(&exists)
	if err != nil {
		return false, wrap("find owner", err)
	}
	return exists == 1, nil
}

func (s *RecordStore) UpsertOwner(ctx context.Context, owner domain.Owner) error {
	id := strings.TrimSpace(owner.ID)
	if id == "" {
		return &domain.ValidationError{Field: "id", Message: "owner id is required"}
	}
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
         ON CONFLICT (id) DO UPDATE SET
           email = CASE WHEN excluded.email = '' THEN users.email ELSE excluded.email END,
           name = CASE WHEN excluded.name = '' THEN users.name ELSE excluded.name END,
           updated_at = excluded.updated_at`,
		id, strings.TrimSpace(owner.Email), strings.TrimSpace(owner.Name), now, now,
	)
	return wrap("upsert owner", err)
}

// CreateDiagnosis writes the crop and its diagnosis in one transaction. The
// diagnosis already written for jobID is returned instead of a second one.
func (s *RecordStore) CreateDiagnosis(ctx context.Context, jobID, ownerID string, p domain.NormalizedPrediction, info domain.DiseaseInfo, image domain.ImageRef) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", wrap("begin diagnosis", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT i.id FROM infections i JOIN crops c ON c.id = i.crop_id WHERE c.job_id = ?`, jobID,
	).Scan(&existing)
	switch {
	case err == nil:
		return existing, nil
	case err != sql.ErrNoRows:
		return "", wrap("find diagnosis", err)
	}

	now := time.Now().UnixMilli()
	cropID := uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO crops (id, job_id, owner_id, crop_name, image_url, image_public_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cropID, jobID, ownerID, p.CropName, image.URL, image.PublicID, now,
	); err != nil {
		return "", wrap("create crop", err)
	}

	diagnosisID := uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO infections (id, crop_id, disease_class, disease_class_raw, disease_top, is_healthy,
           confidence, top_score, inference_id, image_width, image_height,
           description, causes, symptoms, prevention, treatment, info_source, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		diagnosisID, cropID, p.DiseaseClassDisplay, p.DiseaseClassRaw, p.TopClass, p.IsHealthy,
		p.Confidence, p.TopScore, p.InferenceID, p.ImageWidth, p.ImageHeight,
		info.Description, jsonList(info.Causes), jsonList(info.Symptoms), jsonList(info.Prevention), jsonList(info.Treatment),
		info.Source, now,
	); err != nil {
		return "", wrap("create diagnosis", err)
	}

	if err := tx.Commit(); err != nil {
		return "", wrap("commit diagnosis", err)
	}
	return diagnosisID, nil
}

// CountDiagnoses returns how many diagnoses the owner has.
func (s *RecordStore) CountDiagnoses(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM infections i JOIN crops c ON c.id = i.crop_id WHERE c.owner_id = ?`, ownerID,
	).Scan(&n)
	if err != nil {
		return 0, wrap("count diagnoses", err)
	}
	return n, nil
}

// Diagnosis loads a stored diagnosis with its crop.
func (s *RecordStore) Diagnosis(ctx context.Context, id string) (*domain.Diagnosis, error) {
	var (
		d                                       domain.Diagnosis
		healthy                                 int
		causes, symptoms, prevention, treatment string
		created                                 int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT i.id, c.id, c.owner_id, c.crop_name, c.image_url, c.image_public_id,
                i.disease_class, i.disease_class_raw, i.disease_top, i.is_healthy, i.confidence, i.top_score,
                i.inference_id, i.image_width, i.image_height,
                i.description, i.causes, i.symptoms, i.prevention, i.treatment, i.info_source, i.created_at
         FROM infections i JOIN crops c ON c.id = i.crop_id
         WHERE i.id = ?`, id,
	).Scan(
		&d.ID, &d.CropRecordID, &d.OwnerID, &d.Prediction.CropName, &d.Image.URL, &d.Image.PublicID,
		&d.Prediction.DiseaseClassDisplay, &d.Prediction.DiseaseClassRaw, &d.Prediction.TopClass, &healthy,
		&d.Prediction.Confidence, &d.Prediction.TopScore,
		&d.Prediction.InferenceID, &d.Prediction.ImageWidth, &d.Prediction.ImageHeight,
		&d.DiseaseInfo.Description, &causes, &symptoms, &prevention, &treatment, &d.DiseaseInfo.Source, &created,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, wrap("get diagnosis", err)
	}
	d.Prediction.IsHealthy = healthy == 1
	d.DiseaseInfo.Causes = parseList(causes)
	d.DiseaseInfo.Symptoms = parseList(symptoms)
	d.DiseaseInfo.Prevention = parseList(prevention)
	d.DiseaseInfo.Treatment = parseList(treatment)
	d.CreatedAt = time.UnixMilli(created).UTC()
	return &d, nil
}

func jsonList(items []string) string {
	if items == nil {
		items = []string{}
	}
	raw, _ := json.Marshal(items)
	return string(raw)
}

func parseList(raw string) []string {
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return []string{}
	}
	return out
}

var (
	_ domain.RecordStore   = (*RecordStore)(nil)
	_ domain.OwnerRegistry = (*RecordStore)(nil)
)
