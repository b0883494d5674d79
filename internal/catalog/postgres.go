package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobmate/recommender-service/internal/model"
)

// loadJobsSQL reads the catalog in index row order. The index builder uses
// the same ordering, so row N of the result pairs with vector N.
const loadJobsSQL = `
	SELECT job_title, company_name, location, experience_level, skills,
	       salary_min, salary_max, COALESCE(created_date::text, ''), COALESCE(direct_link, ''),
	       COALESCE(category, ''), COALESCE(requirements, ''),
	       COALESCE(responsibilities, ''), COALESCE(job_description, '')
	FROM jobs
	ORDER BY index_position, id`

// PostgresSource loads the catalog from the jobs table.
type PostgresSource struct {
	pool *pgxpool.Pool
}

// NewPostgresSource constructs a PostgresSource.
func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

// Load reads every job inside one read-only repeatable-read transaction so
// the result reflects a single point in time.
func (s *PostgresSource) Load(ctx context.Context) ([]model.JobRecord, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("begin catalog tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, loadJobsSQL)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var records []model.JobRecord
	for rows.Next() {
		var (
			r           model.JobRecord
			title       *string
			company     *string
			location    *string
			experience  *string
			skills      *string
			createdDate string
		)
		if err := rows.Scan(
			&title, &company, &location, &experience, &skills,
			&r.SalaryMin, &r.SalaryMax, &createdDate, &r.Link,
			&r.Category, &r.Requirements, &r.Responsibilities, &r.Description,
		); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		r.Title = deref(title)
		r.Company = deref(company)
		r.Location = deref(location)
		r.ExperienceLevel = deref(experience)
		r.Skills = deref(skills)
		r.Position = len(records)
		records = append(records, r.WithCreatedDate(createdDate))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read jobs: %w", err)
	}

	return records, tx.Commit(ctx)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
