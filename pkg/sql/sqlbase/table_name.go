// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package sqlbase

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// TableName is a table name, optionally qualified by its database.
type TableName struct {
	Database string
	Table    string
}

// MakeTableName creates a TableName. An empty db leaves the name
// unqualified.
func MakeTableName(db, tbl string) TableName {
	return TableName{Database: db, Table: tbl}
}

// ParseTableName parses "tbl" or "db.tbl".
func ParseTableName(s string) (TableName, error) {
	parts := strings.Split(s, ".")
	switch {
	case len(parts) == 1 && parts[0] != "":
		return TableName{Table: parts[0]}, nil
	case len(parts) == 2 && parts[0] != "" && parts[1] != "":
		return TableName{Database: parts[0], Table: parts[1]}, nil
	}
	return TableName{}, errors.Newf("invalid table name %q", s)
}

// IsEmpty returns whether the table part is empty.
func (tn TableName) IsEmpty() bool {
	return tn.Table == ""
}

// IsFullyQualified returns true if the name has a database.
func (tn TableName) IsFullyQualified() bool {
	return tn.Database != ""
}

func (tn TableName) String() string {
	if tn.Database == "" {
		return tn.Table
	}
	return tn.Database + "." + tn.Table
}
