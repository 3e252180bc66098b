// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// The resume records below are owned by a user and removed with the account.

type Profile struct { //nolint:govet // fieldalignment: readability over optimization
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Headline  string    `db:"headline" json:"headline"`
	Summary   string    `db:"summary" json:"summary"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Education struct { //nolint:govet // fieldalignment: readability over optimization
	ID          int64     `db:"id" json:"id"`
	UserID      int64     `db:"user_id" json:"user_id"`
	Institution string    `db:"institution" json:"institution"`
	Degree      string    `db:"degree" json:"degree"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

type Experience struct { //nolint:govet // fieldalignment: readability over optimization
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Company   string    `db:"company" json:"company"`
	Title     string    `db:"title" json:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Project struct { //nolint:govet // fieldalignment: readability over optimization
	ID          int64     `db:"id" json:"id"`
	UserID      int64     `db:"user_id" json:"user_id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// DocumentKind is the type of a generated document.
type DocumentKind string

const (
	DocumentResume      DocumentKind = "resume"
	DocumentCoverLetter DocumentKind = "cover_letter"
)

type GeneratedDocument struct { //nolint:govet // fieldalignment: readability over optimization
	ID        int64        `db:"id" json:"id"`
	UserID    int64        `db:"user_id" json:"user_id"`
	Kind      DocumentKind `db:"kind" json:"kind"`
	Title     string       `db:"title" json:"title"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
}

// OwnedRecords counts the resume records that belong to one user.
type OwnedRecords struct {
	Profiles           int64 `db:"profiles" json:"profiles"`
	Educations         int64 `db:"educations" json:"educations"`
	Experiences        int64 `db:"experiences" json:"experiences"`
	Projects           int64 `db:"projects" json:"projects"`
	GeneratedDocuments int64 `db:"generated_documents" json:"generated_documents"`
}

// Total sums all record counts.
func (o OwnedRecords) Total() int64 {
	return o.Profiles + o.Educations + o.Experiences + o.Projects + o.GeneratedDocuments
}
