package templates

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"
	"time"

	"notification-platform/internal/common/database"
	apperrors "notification-platform/internal/common/errors"
	"notification-platform/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const templateColumns = `id, template_id, name, description, type, category, subject, content,
	language, variables, is_active, version, created_at, updated_at`

// uniqueViolation is the postgres SQLSTATE for a unique index conflict.
const uniqueViolation = "23505"

// Store persists templates in notification_templates.
type Store struct {
	db  database.DBTX
	now func() time.Time
}

func NewStore(db database.DBTX) *Store {
	return &Store{db: db, now: time.Now}
}

// Create inserts a new active template. A name already held by an active
// template is rejected.
func (s *Store) Create(ctx context.Context, t models.Template) (*models.Template, error) {
	if err := validate(t); err != nil {
		return nil, err
	}

	_, found, err := s.Get(ctx, t.Name)
	if err != nil {
		return nil, err
	}
	if found {
		return nil, apperrors.NewTemplateAlreadyExistsError(t.Name)
	}

	now := s.now().UTC()
	t.ID = uuid.NewString()
	if t.TemplateID == "" {
		t.TemplateID = t.Name
	}
	if t.Language == "" {
		t.Language = models.DefaultTemplateLanguage
	}
	if t.Category == "" {
		t.Category = models.CategoryCustom
	}
	if t.Variables == nil {
		t.Variables = Variables(t.Subject + " " + t.Content)
	}
	t.IsActive = true
	t.Version = 1
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `INSERT INTO notification_templates (`+templateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		t.ID, t.TemplateID, t.Name, t.Description, string(t.Type), string(t.Category), t.Subject, t.Content,
		t.Language, pq.Array(t.Variables), t.IsActive, t.Version, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, apperrors.NewTemplateAlreadyExistsError(t.Name)
		}
		return nil, apperrors.NewPersistenceError("create template", err)
	}
	return &t, nil
}

// Get returns the active template with the given name. found is false when
// no active template matches; that is not an error.
func (s *Store) Get(ctx context.Context, name string) (*models.Template, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateColumns+`
		FROM notification_templates WHERE name = $1 AND is_active = TRUE`, name)

	t, err := scanTemplate(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.NewPersistenceError("get template", err)
	}
	return t, true, nil
}

// List returns active templates, newest first, optionally filtered by channel.
func (s *Store) List(ctx context.Context, channel models.Channel) ([]models.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM notification_templates WHERE is_active = TRUE`
	var args []interface{}
	if channel != "" {
		query += ` AND type = $1`
		args = append(args, string(channel))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list templates", err)
	}
	defer rows.Close()

	out := []models.Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, apperrors.NewPersistenceError("scan template", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("list templates", err)
	}
	return out, nil
}

// Update applies patch to the active template name in place and bumps its version.
func (s *Store) Update(ctx context.Context, name string, patch models.TemplatePatch) (*models.Template, error) {
	t, found, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperrors.NewTemplateNotFoundError(name)
	}

	patch.Apply(t)
	if patch.Category != nil && !t.Category.Valid() {
		return nil, apperrors.NewValidationError("unknown template category " + string(t.Category))
	}
	t.Version++
	t.UpdatedAt = s.now().UTC()

	_, err = s.db.ExecContext(ctx, `UPDATE notification_templates
		SET description = $2, category = $3, subject = $4, content = $5, language = $6,
			variables = $7, is_active = $8, version = $9, updated_at = $10
		WHERE id = $1`,
		t.ID, t.Description, string(t.Category), t.Subject, t.Content, t.Language,
		pq.Array(t.Variables), t.IsActive, t.Version, t.UpdatedAt)
	if err != nil {
		return nil, apperrors.NewPersistenceError("update template", err)
	}
	return t, nil
}

// Deactivate soft deletes the template. It reports whether an active
// template was found.
func (s *Store) Deactivate(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE notification_templates
		SET is_active = FALSE, updated_at = $2 WHERE name = $1 AND is_active = TRUE`,
		name, s.now().UTC())
	if err != nil {
		return false, apperrors.NewPersistenceError("deactivate template", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.NewPersistenceError("deactivate template", err)
	}
	return n > 0, nil
}

// SeedDefaults inserts each default template whose name has never been used.
// It returns the names that were created.
func (s *Store) SeedDefaults(ctx context.Context) ([]string, error) {
	var created []string
	for _, t := range DefaultTemplates() {
		var exists bool
		err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM notification_templates WHERE name = $1)`, t.Name).Scan(&exists)
		if err != nil {
			return created, apperrors.NewPersistenceError("seed templates", err)
		}
		if exists {
			continue
		}
		if _, err := s.Create(ctx, t); err != nil {
			return created, err
		}
		created = append(created, t.Name)
	}
	return created, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTemplate(row scanner) (*models.Template, error) {
	var (
		t        models.Template
		typ, cat string
	)
	err := row.Scan(&t.ID, &t.TemplateID, &t.Name, &t.Description, &typ, &cat, &t.Subject, &t.Content,
		&t.Language, pq.Array(&t.Variables), &t.IsActive, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Type = models.Channel(typ)
	t.Category = models.TemplateCategory(cat)
	return &t, nil
}

func validate(t models.Template) error {
	var problems []string
	if strings.TrimSpace(t.Name) == "" {
		problems = append(problems, "name is required")
	}
	switch t.Type {
	case models.ChannelEmail, models.ChannelSMS, models.ChannelPush:
	default:
		problems = append(problems, "type must be one of email, sms, push")
	}
	if strings.TrimSpace(t.Content) == "" {
		problems = append(problems, "content is required")
	}
	if t.Category != "" && !t.Category.Valid() {
		problems = append(problems, "unknown category "+string(t.Category))
	}
	if len(problems) > 0 {
		return apperrors.NewValidationError(strings.Join(problems, "; "))
	}
	return nil
}
