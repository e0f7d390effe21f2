// SPDX-License-Identifier: Apache-2.0

// Package migrations embeds the schema migration files. Migrations apply in
// lexical filename order, so new files take the next numeric prefix.
package migrations

import (
	"embed"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.sql
var schemaFiles embed.FS

type File struct {
	Name string
	SQL  string
}

// Ordered returns every embedded .sql file sorted by name.
func Ordered() ([]File, error) {
	entries, err := fs.ReadDir(schemaFiles, ".")
	if err != nil {
		return nil, err
	}

	files := make([]File, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		body, err := schemaFiles.ReadFile(name)
		if err != nil {
			return nil, err
		}
		files = append(files, File{Name: name, SQL: string(body)})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Name < files[j].Name
	})
	return files, nil
}
