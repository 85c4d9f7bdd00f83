package main

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"IDXCORE/internal/payload"
	"IDXCORE/types"
)

// yamlDocument 导入文件里的一篇文档，字段值可以是标量或列表
type yamlDocument struct {
	Id     string         `yaml:"id"`
	Fields map[string]any `yaml:"fields"`
}

// readDocuments 读取YAML格式的文档列表
func readDocuments(r io.Reader) ([]types.Document, error) {
	var raw []yamlDocument
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse documents: %w", err)
	}
	docs := make([]types.Document, 0, len(raw))
	for _, d := range raw {
		fields := make(map[string][]payload.Value, len(d.Fields))
		for name, v := range d.Fields {
			items, ok := v.([]any)
			if !ok {
				items = []any{v}
			}
			values := make([]payload.Value, 0, len(items))
			for _, item := range items {
				value, err := toValue(item)
				if err != nil {
					return nil, fmt.Errorf("document %s field %s: %w", d.Id, name, err)
				}
				values = append(values, value)
			}
			fields[name] = values
		}
		docs = append(docs, types.Document{Id: d.Id, Fields: fields})
	}
	return docs, nil
}

func toValue(v any) (payload.Value, error) {
	switch x := v.(type) {
	case int:
		return payload.Int64(int64(x)), nil
	case int64:
		return payload.Int64(x), nil
	case uint64:
		return payload.Int64(int64(x)), nil
	case float64:
		return payload.Double(x), nil
	case string:
		return payload.String(x), nil
	case bool:
		return payload.Bool(x), nil
	}
	return payload.Value{}, fmt.Errorf("%w: unsupported value %v of type %T", payload.ErrFieldMismatch, v, v)
}
