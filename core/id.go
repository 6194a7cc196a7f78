package core

import (
	"github.com/google/uuid"

	"pkt.systems/ait/schema"
)

// newTabID returns a short random tab id.
func newTabID() schema.TabID {
	id := uuid.New()
	return schema.TabID("tab-" + id.String()[:8])
}
