package document

// MaxFileSize is the maximum size of one uploaded original.
const MaxFileSize = 8 << 20 // 8MB

// File is an uploaded original kept for read access.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}
