package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const projectColumns = `id, share_link_id, product_name, glb_url, usdz_url, thumbnail_url, notes, access_code, status, created_at, updated_at`

// GetProjectByShareLinkID returns ErrNotFound when no project carries the id.
func (s *PostgresStore) GetProjectByShareLinkID(ctx context.Context, shareLinkID string) (ProjectShare, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM ar_projects WHERE share_link_id = $1`, shareLinkID)
	project, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ProjectShare{}, ErrNotFound
	}
	if err != nil {
		return ProjectShare{}, fmt.Errorf("get project %s: %w", shareLinkID, err)
	}
	return project, nil
}

func (s *PostgresStore) InsertProject(ctx context.Context, project ProjectShare) (ProjectShare, error) {
	if project.Status == "" {
		project.Status = StatusPending
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO ar_projects (share_link_id, product_name, glb_url, usdz_url, thumbnail_url, notes, access_code, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`,
		project.ShareLinkID,
		project.ProductName,
		nilIfEmpty(project.AssetRefGLB),
		nilIfEmpty(project.AssetRefUSDZ),
		project.ThumbnailURL,
		nilIfEmpty(project.Notes),
		nilIfEmpty(project.AccessCode),
		string(project.Status),
	).Scan(&project.ID, &project.CreatedAt, &project.UpdatedAt)
	if isUniqueViolation(err) {
		return ProjectShare{}, fmt.Errorf("insert project %s: %w", project.ShareLinkID, ErrConflict)
	}
	if err != nil {
		return ProjectShare{}, fmt.Errorf("insert project: %w", err)
	}
	return project, nil
}

// ListProjects returns projects newest first. A non-blank query filters on the
// product name, case-insensitively.
func (s *PostgresStore) ListProjects(ctx context.Context, query string, limit, offset int) ([]ProjectShare, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	where := ""
	args := []any{}
	if q := strings.TrimSpace(query); q != "" {
		where = ` WHERE product_name ILIKE $1`
		args = append(args, "%"+escapeLike(q)+"%")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM ar_projects`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count projects: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM ar_projects%s ORDER BY created_at DESC LIMIT %d OFFSET %d`, projectColumns, where, limit, offset),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := []ProjectShare{}
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate projects: %w", err)
	}
	return projects, total, nil
}

func (s *PostgresStore) InsertFeedback(ctx context.Context, feedback Feedback) (Feedback, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO client_feedback (ar_project_id, feedback_type, comment, client_name, client_email)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, submitted_at
	`, feedback.ShareLinkID, string(feedback.FeedbackType), nilIfEmpty(feedback.Comment),
		nilIfEmpty(feedback.ClientName), nilIfEmpty(feedback.ClientEmail)).Scan(&feedback.ID, &feedback.SubmittedAt)
	if err != nil {
		return Feedback{}, fmt.Errorf("insert feedback: %w", err)
	}
	return feedback, nil
}

// ListFeedback returns feedback newest first with each project's name and
// thumbnail. A blank shareLinkID lists feedback for every project.
func (s *PostgresStore) ListFeedback(ctx context.Context, shareLinkID string, limit, offset int) ([]FeedbackEntry, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	where := ""
	args := []any{}
	if id := strings.TrimSpace(shareLinkID); id != "" {
		where = ` WHERE f.ar_project_id = $1`
		args = append(args, id)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM client_feedback f`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count feedback: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT f.id, f.ar_project_id, f.feedback_type, f.comment, f.client_name, f.client_email, f.submitted_at,
			COALESCE(p.product_name, ''), COALESCE(p.thumbnail_url, '')
		FROM client_feedback f
		LEFT JOIN ar_projects p ON p.share_link_id = f.ar_project_id%s
		ORDER BY f.submitted_at DESC LIMIT %d OFFSET %d`, where, limit, offset),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()

	entries := []FeedbackEntry{}
	for rows.Next() {
		var (
			entry        FeedbackEntry
			feedbackType string
			comment      sql.NullString
			clientName   sql.NullString
			clientEmail  sql.NullString
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.ShareLinkID,
			&feedbackType,
			&comment,
			&clientName,
			&clientEmail,
			&entry.SubmittedAt,
			&entry.ProductName,
			&entry.ThumbnailURL,
		); err != nil {
			return nil, 0, fmt.Errorf("scan feedback: %w", err)
		}
		entry.FeedbackType = FeedbackType(feedbackType)
		entry.Comment = comment.String
		entry.ClientName = clientName.String
		entry.ClientEmail = clientEmail.String
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate feedback: %w", err)
	}
	return entries, total, nil
}

// DeleteProject removes a project. Its feedback goes with it through the
// ON DELETE CASCADE foreign key.
func (s *PostgresStore) DeleteProject(ctx context.Context, shareLinkID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ar_projects WHERE share_link_id = $1`, shareLinkID)
	if err != nil {
		return fmt.Errorf("delete project %s: %w", shareLinkID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete project %s: %w", shareLinkID, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (ProjectShare, error) {
	var (
		project ProjectShare
		glb     sql.NullString
		usdz    sql.NullString
		notes   sql.NullString
		code    sql.NullString
		status  string
	)
	err := row.Scan(
		&project.ID,
		&project.ShareLinkID,
		&project.ProductName,
		&glb,
		&usdz,
		&project.ThumbnailURL,
		&notes,
		&code,
		&status,
		&project.CreatedAt,
		&project.UpdatedAt,
	)
	if err != nil {
		return ProjectShare{}, err
	}
	project.AssetRefGLB = glb.String
	project.AssetRefUSDZ = usdz.String
	project.Notes = notes.String
	project.AccessCode = code.String
	project.Status = ProjectStatus(status)
	return project, nil
}

func nilIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(value string) string {
	return likeEscaper.Replace(value)
}
