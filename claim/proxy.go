// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package claim

import (
	"time"

	"github.com/google/uuid"

	"github.com/musictopeople/ocm-go/ids"
)

// ProxyMemory records that an organization authored a memory on behalf of
// an as-yet-unregistered subject.
type ProxyMemory struct {
	ID              uuid.UUID  `json:"id"`
	ProxyForName    string     `json:"proxy_for_name"`
	ProxyForInfo    string     `json:"proxy_for_info,omitempty"`
	OrganizationDID ids.DID    `json:"organization_did"`
	MemoryData      string     `json:"memory_data"`
	CreatedTimestamp time.Time `json:"created_timestamp"`
	ClaimTokenID    *uuid.UUID `json:"claim_token_id,omitempty"`
}
