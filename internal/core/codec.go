package core

import (
	"assetflow/pkg/domain"
	"encoding/json"
	"fmt"
)

// toFields renders an entity through its JSON tags so documents carry the
// same snake_case names across every backend.
func toFields(v any) (domain.Fields, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	fields := domain.Fields{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return fields, nil
}

func fromDocument[T any](doc domain.Document) (T, error) {
	var out T
	raw, err := json.Marshal(doc.Fields)
	if err != nil {
		return out, fmt.Errorf("decode %s %s: %w", doc.Collection, doc.ID, err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s %s: %w", doc.Collection, doc.ID, err)
	}
	return out, nil
}

func decodeAsset(doc domain.Document) (domain.Asset, error) {
	a, err := fromDocument[domain.Asset](doc)
	a.ID, a.Version = doc.ID, doc.Version
	return a, err
}

func decodeRequest(doc domain.Document) (domain.AssetRequest, error) {
	r, err := fromDocument[domain.AssetRequest](doc)
	r.ID, r.Version = doc.ID, doc.Version
	return r, err
}

func decodeIssue(doc domain.Document) (domain.AssetIssue, error) {
	is, err := fromDocument[domain.AssetIssue](doc)
	is.ID, is.Version = doc.ID, doc.Version
	return is, err
}

func decodeEvent(doc domain.Document) (domain.AssetEvent, error) {
	ev, err := fromDocument[domain.AssetEvent](doc)
	ev.ID = doc.ID
	return ev, err
}
