package requests

import (
	"encoding/json"

	"github.com/nodepool-project/nodepool/pkg/models"
)

// Envelope is the standard discovery node response wrapper. Every application
// response carries the payload under "data" plus the node's current indexing
// heights, which is what response staleness validation inspects.
type Envelope struct {
	models.HealthReport

	Data      json.RawMessage `json:"data"`
	Signer    string          `json:"signer,omitempty"`
	Signature string          `json:"signature,omitempty"`
}
