// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gxsverify implements the two-phase verification pipeline that
// gates what synced content is written to storage: an immediate check
// against locally cached keys, and a delayed retry path for content
// whose author key is not known yet.
package gxsverify

import (
	"crypto/rsa"

	"github.com/zapek/gxs/pkg/gxs"
	"github.com/zapek/gxs/pkg/gxscrypto"
	"github.com/zapek/gxs/pkg/identity"
	"github.com/zapek/gxs/pkg/logging"
	"github.com/zapek/gxs/pkg/transport"
)

// Result is the outcome of verifying one candidate.
type Result int

const (
	// OK means every applicable signature validated.
	OK Result = iota + 1
	// Failed means a signature mismatched or a required signature is
	// missing. The candidate must be discarded.
	Failed
	// Delayed means the author's public key is not locally known yet.
	// The candidate goes to the pending queue.
	Delayed
)

func (r Result) String() string {
	switch r {
	case OK:
		return "OK"
	case Failed:
		return "FAILED"
	case Delayed:
		return "DELAYED"
	default:
		return "Unknown"
	}
}

// Verifier validates candidate groups and messages against their
// signatures before they are trusted.
type Verifier struct {
	lookup       identity.Lookup
	requirements *Requirements
	logger       logging.Logger
	metrics      metrics
}

// New constructs a Verifier. A nil requirements policy is a
// misconfigured content service and aborts initialization.
func New(lookup identity.Lookup, requirements *Requirements, logger logging.Logger) *Verifier {
	if requirements == nil {
		panic("gxsverify: nil authentication requirements")
	}
	return &Verifier{
		lookup:       lookup,
		requirements: requirements,
		logger:       logger,
		metrics:      newMetrics(),
	}
}

// Group verifies a candidate group received through the given peer.
// storedAdmin is the admin public key of the previously stored version
// of the group, or nil if the group is not known locally. An update is
// never checked against the candidate's own embedded key, which is what
// prevents a malicious peer from swapping someone's identity key to
// forge future updates.
func (v *Verifier) Group(peer transport.Peer, meta *gxs.GroupMeta, data []byte, storedAdmin *rsa.PublicKey) Result {
	// the group id is a commitment to the admin key it was created with
	if meta.AdminPublicKey == nil || !gxscrypto.NewId(meta.AdminPublicKey).Equal(meta.Id) {
		v.logger.Warningf("group %s: id does not match the embedded admin key", meta.Id)
		v.metrics.Failed.Inc()
		return Failed
	}

	payload := meta.SignaturePayload(data)

	if !meta.Author.IsZero() {
		key, ok := v.lookup.PublicKey(peer, meta.Author)
		if !ok {
			v.metrics.Delayed.Inc()
			return Delayed
		}
		if !gxscrypto.Verify(payload, meta.AuthorSignature, key) {
			v.logger.Warningf("group %s: author signature mismatch for author %s", meta.Id, meta.Author)
			v.metrics.Failed.Inc()
			return Failed
		}
	}

	adminKey := meta.AdminPublicKey
	if storedAdmin != nil {
		adminKey = storedAdmin
	}
	if !gxscrypto.Verify(payload, meta.AdminSignature, adminKey) {
		if storedAdmin != nil && !gxscrypto.KeysEqual(storedAdmin, meta.AdminPublicKey) {
			v.logger.Warningf("group %s: admin signature mismatch, embedded key differs from stored key (key swap attempted)", meta.Id)
		} else {
			v.logger.Warningf("group %s: admin signature mismatch", meta.Id)
		}
		v.metrics.Failed.Inc()
		return Failed
	}

	v.metrics.Verified.Inc()
	return OK
}

// Message verifies a candidate message received through the given peer.
// group is the locally stored group the message belongs to; its
// visibility selects which authentication requirements apply.
func (v *Verifier) Message(peer transport.Peer, meta *gxs.MessageMeta, data []byte, group *gxs.GroupMeta) Result {
	// the message id is a hash of the signed content
	if !meta.ComputeId(data).Equal(meta.Id) {
		v.logger.Warningf("message %s in group %s: id does not match the content", meta.Id, meta.GroupId)
		v.metrics.Failed.Inc()
		return Failed
	}

	var (
		flags       = v.requirements.For(group.Diffusion)
		root        = meta.IsRoot()
		needAuthor  = (root && flags.Has(RootAuthor)) || (!root && flags.Has(ChildAuthor))
		needPublish = (root && flags.Has(RootPublish)) || (!root && flags.Has(ChildPublish))
		payload     = meta.SignaturePayload(data)
	)

	if meta.Author.IsZero() {
		if needAuthor && !v.requirements.OptionalAuthor {
			v.logger.Warningf("message %s in group %s: required author signature missing", meta.Id, meta.GroupId)
			v.metrics.Failed.Inc()
			return Failed
		}
	} else {
		key, ok := v.lookup.PublicKey(peer, meta.Author)
		if !ok {
			v.metrics.Delayed.Inc()
			return Delayed
		}
		if !gxscrypto.Verify(payload, meta.AuthorSignature, key) {
			v.logger.Warningf("message %s in group %s: author signature mismatch for author %s", meta.Id, meta.GroupId, meta.Author)
			v.metrics.Failed.Inc()
			return Failed
		}
	}

	if needPublish && !gxscrypto.Verify(payload, meta.PublishSignature, group.PublishPublicKey) {
		v.logger.Warningf("message %s in group %s: publish signature mismatch", meta.Id, meta.GroupId)
		v.metrics.Failed.Inc()
		return Failed
	}

	v.metrics.Verified.Inc()
	return OK
}
