package api

import (
	"github.com/valyala/fastjson"

	"github.com/driftlog/driftlog/server/internal/store"
)

// recordFromJSON converts one POST /log object into a store.Record.
// Missing or null fields are left empty for the store to validate or
// default; fields of the wrong JSON type are rejected here.
func recordFromJSON(v *fastjson.Value) (store.Record, error) {
	if v.Type() != fastjson.TypeObject {
		return store.Record{}, &store.ValidationError{Reason: "record must be a JSON object"}
	}

	var rec store.Record
	var err error
	if rec.ServiceName, err = stringField(v, "service_name"); err != nil {
		return store.Record{}, err
	}
	if rec.Message, err = stringField(v, "message"); err != nil {
		return store.Record{}, err
	}
	if rec.ID, err = stringField(v, "id"); err != nil {
		return store.Record{}, err
	}

	ts, err := stringField(v, "timestamp")
	if err != nil {
		return store.Record{}, err
	}
	if ts != "" {
		if rec.Timestamp, err = store.ParseTimestamp(ts); err != nil {
			return store.Record{}, err
		}
	}
	return rec, nil
}

func stringField(v *fastjson.Value, name string) (string, error) {
	f := v.Get(name)
	if f == nil || f.Type() == fastjson.TypeNull {
		return "", nil
	}
	if f.Type() != fastjson.TypeString {
		return "", &store.ValidationError{Field: name, Reason: "must be a string"}
	}
	b, _ := f.StringBytes()
	return string(b), nil
}
