package uploads

import (
	"path/filepath"
	"strings"
)

var contentTypes = map[string]string{
	".dae":  "application/xml",
	".x3d":  "application/xml",
	".gltf": "application/json",
	".glb":  "model/gltf-binary",
}

// ContentType infers a download content type from the file name's extension.
// CAD formats without a registered type are served as octet-stream.
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}
