package models

import (
	"fmt"
	"path"
	"strings"
)

// DocumentReference identifies one input artifact in object storage.
// It is immutable once created; references are produced by the triggering
// storage event or by the start-batch request payload.
type DocumentReference struct {
	Name      string `json:"name" firestore:"name"`
	URL       string `json:"url" firestore:"url"`
	Container string `json:"container" firestore:"container"`
}

// Validate reports whether the reference carries all required fields.
func (r DocumentReference) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("document reference requires a non-empty name")
	}
	if strings.TrimSpace(r.URL) == "" {
		return fmt.Errorf("document reference requires a non-empty url")
	}
	if strings.TrimSpace(r.Container) == "" {
		return fmt.Errorf("document reference requires a non-empty container")
	}
	return nil
}

// ObjectPath returns the object path within the container. Storage events
// frequently deliver names prefixed with the container ("bronze/file.pdf"),
// so the prefix is stripped when present.
func (r DocumentReference) ObjectPath() string {
	return strings.TrimPrefix(r.Name, r.Container+"/")
}

// BaseName returns the file name without directories or extension. It is
// used to derive the output object name for the persistence stage.
func (r DocumentReference) BaseName() string {
	base := path.Base(r.ObjectPath())
	return strings.TrimSuffix(base, path.Ext(base))
}
