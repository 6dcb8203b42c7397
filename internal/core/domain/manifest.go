package domain

import "time"

// ManifestFilename is written once into every completed backup
// directory and is the single source of truth consulted by restore.
const ManifestFilename = "manifest.json"

// SchemaFilename holds the optional schema export referenced by the
// manifest.
const SchemaFilename = "schema.json"

// ChunkFile describes one bounded slice of one table's export.
// Chunk files for a table are produced in strictly increasing offset
// order; concatenated in index order they reconstruct the full
// filtered result set.
type ChunkFile struct {
	Filename    string `json:"filename"`
	TableName   string `json:"tableName"`
	RecordCount int    `json:"recordCount"`
	FileSize    int64  `json:"fileSize"`
	ChunkIndex  int    `json:"chunkIndex"`
}

// TableStats is the per-table aggregate in the manifest.
type TableStats struct {
	RecordCount int      `json:"recordCount"`
	FileSize    int64    `json:"fileSize"`
	Files       []string `json:"files"`
}

// ManifestStats aggregates record and byte counts across the backup.
type ManifestStats struct {
	TotalRecords int                   `json:"totalRecords"`
	TotalSize    int64                 `json:"totalSize"`
	Tables       map[string]TableStats `json:"tables"`
}

// Manifest is the authoritative, immutable record of what a completed
// backup contains.
type Manifest struct {
	ID          string        `json:"id"`
	CreatedAt   time.Time     `json:"createdAt"`
	CreatedBy   string        `json:"createdBy"`
	Description string        `json:"description"`
	Tables      []string      `json:"tables"`
	Format      string        `json:"format"`
	Files       []ChunkFile   `json:"files"`
	Stats       ManifestStats `json:"stats"`
	SchemaFile  string        `json:"schemaFile,omitempty"`
}

// TableFiles returns the chunk files for one table in chunk-index order.
// Files are appended in production order, which is index order.
func (m *Manifest) TableFiles(table string) []ChunkFile {
	var files []ChunkFile
	for _, f := range m.Files {
		if f.TableName == table {
			files = append(files, f)
		}
	}
	return files
}
