package relay

import (
	"os"

	"filerelay/internal/pathsafe"
	"filerelay/internal/wire"
)

const fileMode = 0o644

// WriteFile materializes one write request under baseDir and returns the
// absolute path written. Missing parent directories are created.
func WriteFile(baseDir string, request wire.WriteRequest) (string, error) {
	path, err := pathsafe.Resolve(baseDir, request.RelativePath)
	if err != nil {
		return "", &RequestError{Kind: KindInvalidPath, Err: err}
	}
	if err := pathsafe.EnsureParent(path); err != nil {
		return "", &RequestError{Kind: KindIOFailure, Err: err}
	}
	if err := os.WriteFile(path, request.Content, fileMode); err != nil {
		return "", &RequestError{Kind: KindIOFailure, Err: err}
	}
	return path, nil
}

// Apply decodes an inbound frame and writes it.
func Apply(baseDir string, frame []byte) (string, error) {
	request, err := wire.Decode(frame)
	if err != nil {
		return "", classifyDecode(err)
	}
	return WriteFile(baseDir, request)
}
