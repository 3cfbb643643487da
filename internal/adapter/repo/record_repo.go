package repo

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"agrinix/internal/domain"
	"agrinix/internal/infra"
	"agrinix/internal/sqlinline"
)

// RecordStorePG implements domain.RecordStore and domain.OwnerRegistry on PostgreSQL.
type RecordStorePG struct {
	sql infra.SQLExecutor
}

// NewRecordStore constructs a PostgreSQL-backed record store.
func NewRecordStore(sql infra.SQLExecutor) *RecordStorePG {
	return &RecordStorePG{sql: sql}
}

// FindOwner reports whether the owner account exists.
func (r *RecordStorePG) FindOwner(ctx context.Context, ownerID string) (bool, error) {
	var exists bool
	if err := r.sql.QueryRow(ctx, sqlinline.QOwnerExists, ownerID).Scan(&exists); err != nil {
		return false, classify("find owner", err)
	}
	return exists, nil
}

// UpsertOwner creates the owner or refreshes its profile fields.
func (r *RecordStorePG) UpsertOwner(ctx context.Context, owner domain.Owner) error {
	id := strings.TrimSpace(owner.ID)
	if id == "" {
		return &domain.ValidationError{Field: "id", Message: "owner id is required"}
	}
	_, err := r.sql.Exec(ctx, sqlinline.QUpsertOwner, id, strings.TrimSpace(owner.Email), strings.TrimSpace(owner.Name))
	return classify("upsert owner", err)
}

// CreateDiagnosis inserts a crop record and its diagnosis in one statement,
// or returns the diagnosis already written for jobID.
func (r *RecordStorePG) CreateDiagnosis(ctx context.Context, jobID, ownerID string, p domain.NormalizedPrediction, info domain.DiseaseInfo, image domain.ImageRef) (string, error) {
	var id string
	err := r.sql.QueryRow(ctx, sqlinline.QInsertDiagnosis,
		ownerID,
		p.CropName,
		image.URL,
		image.PublicID,
		p.DiseaseClassDisplay,
		p.DiseaseClassRaw,
		p.TopClass,
		p.IsHealthy,
		p.Confidence,
		p.TopScore,
		p.InferenceID,
		p.ImageWidth,
		p.ImageHeight,
		info.Description,
		nonNil(info.Causes),
		nonNil(info.Symptoms),
		nonNil(info.Prevention),
		nonNil(info.Treatment),
		info.Source,
		jobID,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		// A concurrent writer won the job_id conflict; the retry reads its row.
		return "", domain.Transient("create diagnosis", err)
	}
	if err != nil {
		return "", classify("create diagnosis", err)
	}
	return id, nil
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

var (
	_ domain.RecordStore   = (*RecordStorePG)(nil)
	_ domain.OwnerRegistry = (*RecordStorePG)(nil)
)
