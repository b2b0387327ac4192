// Package xattrs writes the best-effort extended attributes spec.md §6
// documents on the final muxed output: the manifest's origin URL and,
// when present, Dublin Core title/source/rights metadata lifted from the
// MPD's ProgramInformation. Grounded on github.com/pkg/xattr, the library
// the pack's livepeer-catalyst-api go.mod carries for exactly this
// OS-level metadata use case; the teacher repo has no analogue (it never
// writes finished files to a filesystem of its own).
package xattrs

import (
	"net/url"

	"github.com/pkg/xattr"

	"github.com/ericcug/dashget/internal/logger"
	"github.com/ericcug/dashget/internal/model"
)

const (
	attrOriginURL   = "user.xdg.origin.url"
	attrDCTitle     = "user.dublincore.title"
	attrDCSource    = "user.dublincore.source"
	attrDCRights    = "user.dublincore.rights"
)

// Write sets origin-url and Dublin Core attributes on path, swallowing
// any error the platform/filesystem returns (ENOTSUP or otherwise) into
// a logged warning rather than a failure, per spec.md §6's "best-effort"
// language.
func Write(path, manifestURL string, info *model.ProgramInfo, log logger.Logger) {
	if u, err := url.Parse(manifestURL); err == nil && u.User == nil {
		set(path, attrOriginURL, manifestURL, log)
	}

	if info == nil {
		return
	}
	if info.Title != "" {
		set(path, attrDCTitle, info.Title, log)
	}
	if info.Source != "" {
		set(path, attrDCSource, info.Source, log)
	}
	if info.Copyright != "" {
		set(path, attrDCRights, info.Copyright, log)
	}
}

// set is best-effort: a filesystem without extended-attribute support,
// or any other platform-level failure, is logged and swallowed rather
// than surfaced, per spec.md §6.
func set(path, key, value string, log logger.Logger) {
	if err := xattr.Set(path, key, []byte(value)); err != nil {
		log.Warnf("xattrs: failed to set %s on %s (unsupported filesystem or platform?): %v", key, path, err)
	}
}
