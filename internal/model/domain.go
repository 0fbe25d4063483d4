// Copyright © by the domainwatch authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package model holds the data shapes shared by every component of the
// bulk domain-status pipeline: the Domain and Job rows, the in-memory
// LookupResult and NotificationEvent, and the Job payload variants.
package model

import (
	"time"

	"gorm.io/datatypes"
)

// Domain is the tracked unit: a dot-separated name and what the last
// lookup observed about its registration.
type Domain struct {
	ID           uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string     `gorm:"uniqueIndex;not null" json:"name"`
	IsRegistered bool       `gorm:"index;not null" json:"is_registered"`
	ExpiryDate   *time.Time `gorm:"index;type:date" json:"expiry_date,omitempty"`
	LastChecked  *time.Time `gorm:"index" json:"last_checked,omitempty"`
	AddedBy      uint64     `json:"added_by"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (Domain) TableName() string { return "domains" }

// JobKind enumerates the two units of bulk work the queue carries.
type JobKind string

const (
	JobKindImport     JobKind = "import"
	JobKindWhoisCheck JobKind = "whois_check"
)

// JobStatus is the Job row's lifecycle state.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job is one unit of bulk work: an import of raw names, or a whois_check
// of existing Domain ids. Payload is immutable once the row is created;
// Processed only ever moves forward.
type Job struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint64         `gorm:"index" json:"user_id"`
	Kind      JobKind        `gorm:"not null" json:"kind"`
	Status    JobStatus      `gorm:"index;not null" json:"status"`
	Total     int            `json:"total"`
	Processed int            `json:"processed"`
	Errors    int            `json:"errors"`
	Payload   []byte         `gorm:"type:blob" json:"-"`
	Result    datatypes.JSON `json:"result,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (Job) TableName() string { return "jobs" }

// User exists solely as the FK target for Job.UserID and Domain.AddedBy.
// Authentication lives in the out-of-scope HTTP/auth layer; the core
// never reads password_hash or is_admin.
type User struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	IsAdmin      bool      `gorm:"not null;default:false"`
	CreatedAt    time.Time
}

func (User) TableName() string { return "users" }

// Invitation and Notification are declared only so migrations create
// their tables as FK targets for the out-of-scope invitation flow and
// notification-delivery subsystems; the core never populates them.
type Invitation struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Email     string `gorm:"not null"`
	InvitedBy uint64
	CreatedAt time.Time
}

func (Invitation) TableName() string { return "invitations" }

type Notification struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	UserID    uint64 `gorm:"index"`
	Body      string
	CreatedAt time.Time
}

func (Notification) TableName() string { return "notifications" }
