package minio

import (
	"math"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
)

// Bucket is a bucket row.
type Bucket struct {
	Name    string    `json:"name"`
	Created time.Time `json:"created"`
}

// Object is a file or a directory (common prefix) below the current prefix.
type Object struct {
	Key      string    `json:"key"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
	ETag     string    `json:"etag,omitempty"`
	IsDir    bool      `json:"isDir"`
}

// Name is the last path element of the key.
func (o Object) Name() string {
	return path.Base(strings.TrimSuffix(o.Key, "/"))
}

func toBuckets(raw []minio.BucketInfo) []Bucket {
	out := make([]Bucket, 0, len(raw))
	for _, b := range raw {
		out = append(out, Bucket{Name: b.Name, Created: b.CreationDate})
	}
	slices.SortFunc(out, func(a, b Bucket) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// toObjects keeps the entries directly below prefix, directories first and
// then by key. Deeper keys collapse into their first directory.
func toObjects(prefix string, raw []minio.ObjectInfo) []Object {
	out := []Object{}
	seen := map[string]bool{}
	for _, o := range raw {
		if o.Key == "" || o.Key == prefix || !strings.HasPrefix(o.Key, prefix) {
			continue
		}
		rel := strings.TrimPrefix(o.Key, prefix)
		if i := strings.Index(rel, "/"); i >= 0 {
			dir := prefix + rel[:i+1]
			if !seen[dir] {
				seen[dir] = true
				out = append(out, Object{Key: dir, IsDir: true})
			}
			continue
		}
		out = append(out, Object{Key: o.Key, Size: o.Size, Modified: o.LastModified, ETag: strings.Trim(o.ETag, `"`)})
	}
	slices.SortFunc(out, func(a, b Object) int {
		if a.IsDir != b.IsDir {
			if a.IsDir {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Key, b.Key)
	})
	return out
}

// parentPrefix returns the prefix one level up, "" at the root.
func parentPrefix(prefix string) string {
	parts := strings.Split(strings.Trim(prefix, "/"), "/")
	if len(parts) <= 1 {
		return ""
	}
	return strings.Join(parts[:len(parts)-1], "/") + "/"
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB", "TB"}

// FormatSize renders a byte count in 1024 based units with at most two
// decimals, e.g. "1.5 KB".
func FormatSize(n int64) string {
	if n <= 0 {
		return "0 Bytes"
	}
	i := min(int(math.Floor(math.Log(float64(n))/math.Log(1024))), len(sizeUnits)-1)
	v := math.Round(float64(n)/math.Pow(1024, float64(i))*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizeUnits[i]
}

// PublicURL joins a public base with the object key. The bucket is
// inserted unless the base already names it.
func PublicURL(base, bucket, key string) string {
	base = strings.TrimSuffix(base, "/")
	if base == "" {
		return ""
	}
	if strings.Contains(base, bucket) {
		return base + "/" + key
	}
	return base + "/" + bucket + "/" + key
}

// maxPreviewSize bounds inline previews.
const maxPreviewSize = 10 << 20

var previewKinds = map[string]string{
	".jpg": "image", ".jpeg": "image", ".png": "image", ".gif": "image", ".webp": "image", ".svg": "image",
	".txt": "text", ".md": "text", ".json": "text", ".csv": "text", ".log": "text", ".yaml": "text", ".yml": "text",
	".mp3": "audio", ".wav": "audio", ".ogg": "audio",
	".mp4": "video", ".webm": "video", ".mov": "video",
}

// previewKind reports how an object can be previewed, "" when it cannot.
func previewKind(o Object) string {
	if o.IsDir || o.Size > maxPreviewSize {
		return ""
	}
	return previewKinds[strings.ToLower(path.Ext(o.Key))]
}

// previewMarkdown embeds the object at link according to its kind.
func previewMarkdown(o Object, link string) string {
	name := o.Name()
	switch previewKind(o) {
	case "image":
		return "![" + name + "](" + link + ")"
	case "audio", "video", "text":
		return "# " + name + "\n\n[Open " + name + "](" + link + ")"
	}
	return "# " + name + "\n\nNo preview available."
}

func icon(o Object) string {
	if o.IsDir {
		return "folder"
	}
	switch previewKind(Object{Key: o.Key}) {
	case "image":
		return "image"
	case "audio", "video":
		return "play"
	}
	return "document"
}
