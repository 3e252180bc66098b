// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"fmt"

	"codeberg.org/oliverandrich/resumekit/internal/models"
)

// CreateProfile inserts the profile of a user.
func (r *Repository) CreateProfile(ctx context.Context, p *models.Profile) error {
	return wrapError(r.db.GetContext(ctx, &p.ID,
		`INSERT INTO profiles (user_id, headline, summary, created_at) VALUES (?, ?, ?, ?) RETURNING id`,
		p.UserID, p.Headline, p.Summary, p.CreatedAt.UTC()))
}

// CreateEducation inserts an education entry.
func (r *Repository) CreateEducation(ctx context.Context, e *models.Education) error {
	return wrapError(r.db.GetContext(ctx, &e.ID,
		`INSERT INTO educations (user_id, institution, degree, created_at) VALUES (?, ?, ?, ?) RETURNING id`,
		e.UserID, e.Institution, e.Degree, e.CreatedAt.UTC()))
}

// CreateExperience inserts an experience entry.
func (r *Repository) CreateExperience(ctx context.Context, e *models.Experience) error {
	return wrapError(r.db.GetContext(ctx, &e.ID,
		`INSERT INTO experiences (user_id, company, title, created_at) VALUES (?, ?, ?, ?) RETURNING id`,
		e.UserID, e.Company, e.Title, e.CreatedAt.UTC()))
}

// CreateProject inserts a project.
func (r *Repository) CreateProject(ctx context.Context, p *models.Project) error {
	return wrapError(r.db.GetContext(ctx, &p.ID,
		`INSERT INTO projects (user_id, name, description, created_at) VALUES (?, ?, ?, ?) RETURNING id`,
		p.UserID, p.Name, p.Description, p.CreatedAt.UTC()))
}

// CreateGeneratedDocument inserts a generated resume or cover letter.
func (r *Repository) CreateGeneratedDocument(ctx context.Context, d *models.GeneratedDocument) error {
	return wrapError(r.db.GetContext(ctx, &d.ID,
		`INSERT INTO generated_documents (user_id, kind, title, created_at) VALUES (?, ?, ?, ?) RETURNING id`,
		d.UserID, d.Kind, d.Title, d.CreatedAt.UTC()))
}

// CountOwnedRecords counts the resume records of a user.
func (r *Repository) CountOwnedRecords(ctx context.Context, userID int64) (models.OwnedRecords, error) {
	var counts models.OwnedRecords
	err := r.db.GetContext(ctx, &counts,
		`SELECT
		     (SELECT count(*) FROM profiles WHERE user_id = ?) AS profiles,
		     (SELECT count(*) FROM educations WHERE user_id = ?) AS educations,
		     (SELECT count(*) FROM experiences WHERE user_id = ?) AS experiences,
		     (SELECT count(*) FROM projects WHERE user_id = ?) AS projects,
		     (SELECT count(*) FROM generated_documents WHERE user_id = ?) AS generated_documents`,
		userID, userID, userID, userID, userID)
	return counts, wrapError(err)
}

// DeleteOwnedRecords removes every resume record of a user.
func (r *Repository) DeleteOwnedRecords(ctx context.Context, userID int64) (models.OwnedRecords, error) {
	var counts models.OwnedRecords
	targets := []struct {
		table string
		count *int64
	}{
		{"generated_documents", &counts.GeneratedDocuments},
		{"projects", &counts.Projects},
		{"experiences", &counts.Experiences},
		{"educations", &counts.Educations},
		{"profiles", &counts.Profiles},
	}

	for _, target := range targets {
		n, err := rowsAffected(r.db.ExecContext(ctx, `DELETE FROM `+target.table+` WHERE user_id = ?`, userID))
		if err != nil {
			return counts, fmt.Errorf("delete %s: %w", target.table, err)
		}
		*target.count = n
	}

	return counts, nil
}
