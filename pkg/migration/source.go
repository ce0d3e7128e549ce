package migration

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
)

const (
	upMarker   = "-- +migrate Up"
	downMarker = "-- +migrate Down"
)

// FromFS loads the *.sql files in dir. File names follow
// "<version>_<description>.sql", e.g. "002_complete_schema.sql" becomes
// version 2 "complete schema". A file may hold a "-- +migrate Up" section and
// a "-- +migrate Down" section; a file without markers is an up script.
func FromFS(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("migration: read %s: %w", dir, err)
	}

	var out []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, description, err := parseName(entry.Name())
		if err != nil {
			return nil, err
		}
		content, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("migration: read %s: %w", entry.Name(), err)
		}

		up, down := sections(string(content))
		if strings.TrimSpace(up) != "" {
			out = append(out, Migration{Version: version, Description: description, SQL: up, Kind: Up})
		}
		if strings.TrimSpace(down) != "" {
			out = append(out, Migration{Version: version, Description: description, SQL: down, Kind: Down})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Version != out[j].Version {
			return out[i].Version < out[j].Version
		}
		return out[i].Kind < out[j].Kind
	})
	return out, nil
}

// MustFromFS is FromFS for embedded sets that are known to be valid.
func MustFromFS(fsys fs.FS, dir string) []Migration {
	ms, err := FromFS(fsys, dir)
	if err != nil {
		panic(err)
	}
	return ms
}

func parseName(name string) (int64, string, error) {
	base := strings.TrimSuffix(name, ".sql")
	num, rest, _ := strings.Cut(base, "_")
	version, err := strconv.ParseInt(num, 10, 64)
	if err != nil || version <= 0 {
		return 0, "", fmt.Errorf("migration: %s: name must start with a positive version number", name)
	}
	return version, strings.TrimSpace(strings.ReplaceAll(rest, "_", " ")), nil
}

func sections(content string) (up, down string) {
	upIdx := strings.Index(content, upMarker)
	downIdx := strings.Index(content, downMarker)

	switch {
	case upIdx == -1 && downIdx == -1:
		return content, ""
	case downIdx == -1:
		return content[upIdx+len(upMarker):], ""
	case upIdx == -1:
		return content[:downIdx], content[downIdx+len(downMarker):]
	case upIdx < downIdx:
		return content[upIdx+len(upMarker) : downIdx], content[downIdx+len(downMarker):]
	default:
		return content[upIdx+len(upMarker):], content[downIdx+len(downMarker) : upIdx]
	}
}
