package contract

import "strings"

// TestModeWatermark prefixes human-readable titles on mode=test contracts so
// downstream consumers can filter synthetic data.
const TestModeWatermark = "[TESTING]"

// ApplyPatch deep-merges an allow-listed patch payload into the contract's
// generic form and decodes the result back into a Contract. Nested objects
// merge key-wise; collections replace wholesale (sub-entity edits go through
// their dedicated endpoints instead).
func ApplyPatch(c *Contract, patch map[string]any) (*Contract, error) {
	if len(patch) == 0 {
		return c, nil
	}
	merged := MergeMaps(c.ToMap(), patch)
	out, err := FromMap(merged)
	if err != nil {
		return nil, err
	}
	// identity, ownership and bookkeeping are never patchable
	out.ID = c.ID
	out.ContractType = c.ContractType
	out.Owner = c.Owner
	out.OwnerToken = c.OwnerToken
	out.Rev = c.Rev
	out.DocType = c.DocType
	out.Revisions = c.Revisions
	out.DateModified = c.DateModified
	return out, nil
}

// MergeMaps deep-merges src into a copy of dst. Nested objects merge
// key-wise, explicit nulls delete, everything else replaces.
func MergeMaps(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		if v == nil {
			delete(out, k)
			continue
		}
		if sm, ok := v.(map[string]any); ok {
			if dm, ok := out[k].(map[string]any); ok {
				out[k] = MergeMaps(dm, sm)
				continue
			}
		}
		out[k] = v
	}
	return out
}

// StampTestMode rewrites the contract title as test data. Idempotent.
func StampTestMode(c *Contract) {
	if c.Mode != "test" {
		return
	}
	if c.Title != "" && !strings.HasPrefix(c.Title, TestModeWatermark) {
		c.Title = TestModeWatermark + " " + c.Title
	}
}
