// Package all registers every bundled extension.
package all

import (
	"github.com/extdeck/extdeck/extensions/anilist"
	"github.com/extdeck/extdeck/extensions/minio"
	"github.com/extdeck/extdeck/extensions/monobank"
	"github.com/extdeck/extdeck/extensions/rsync"
	"github.com/extdeck/extdeck/extensions/shlink"
	"github.com/extdeck/extdeck/extensions/todoist"
	"github.com/extdeck/extdeck/extensions/wikipedia"
	"github.com/extdeck/extdeck/extensions/youtube"
	"github.com/extdeck/extdeck/pkg/extension"
)

// Registry returns a registry holding every bundled extension.
func Registry() *extension.Registry {
	return extension.NewRegistry(
		anilist.New(),
		minio.New(),
		monobank.New(),
		rsync.New(),
		shlink.New(),
		todoist.New(),
		wikipedia.New(),
		youtube.New(),
	)
}
