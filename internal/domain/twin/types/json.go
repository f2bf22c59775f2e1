package types

import (
	"encoding/json"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// structpb 消息需经 protojson 编解码，下列方法将其嵌入普通 JSON 模型

func rawOf(m proto.Message, present bool) (json.RawMessage, error) {
	if !present {
		return nil, nil
	}
	return protojson.Marshal(m)
}

func valueOf(raw json.RawMessage) (*structpb.Value, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	v := &structpb.Value{}
	if err := protojson.Unmarshal(raw, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (m ServiceResultModel) MarshalJSON() ([]byte, error) {
	type alias ServiceResultModel
	raw, err := rawOf(m.Diagnostics, m.Diagnostics != nil)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		alias
		Diagnostics json.RawMessage `json:"diagnostics,omitempty"`
	}{alias(m), raw})
}

func (m *ServiceResultModel) UnmarshalJSON(b []byte) error {
	type alias ServiceResultModel
	aux := struct {
		*alias
		Diagnostics json.RawMessage `json:"diagnostics,omitempty"`
	}{alias: (*alias)(m)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	m.Diagnostics = nil
	if len(aux.Diagnostics) == 0 || string(aux.Diagnostics) == "null" {
		return nil
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(aux.Diagnostics, s); err != nil {
		return err
	}
	m.Diagnostics = s
	return nil
}

func (m ValueReadResponseModel) MarshalJSON() ([]byte, error) {
	type alias ValueReadResponseModel
	raw, err := rawOf(m.Value, m.Value != nil)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		alias
		Value json.RawMessage `json:"value,omitempty"`
	}{alias(m), raw})
}

func (m *ValueReadResponseModel) UnmarshalJSON(b []byte) error {
	type alias ValueReadResponseModel
	aux := struct {
		*alias
		Value json.RawMessage `json:"value,omitempty"`
	}{alias: (*alias)(m)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	v, err := valueOf(aux.Value)
	m.Value = v
	return err
}

func (m ValueWriteRequestModel) MarshalJSON() ([]byte, error) {
	type alias ValueWriteRequestModel
	raw, err := rawOf(m.Value, m.Value != nil)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		raw = json.RawMessage("null")
	}
	return json.Marshal(struct {
		alias
		Value json.RawMessage `json:"value"`
	}{alias(m), raw})
}

func (m *ValueWriteRequestModel) UnmarshalJSON(b []byte) error {
	type alias ValueWriteRequestModel
	aux := struct {
		*alias
		Value json.RawMessage `json:"value"`
	}{alias: (*alias)(m)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	v, err := valueOf(aux.Value)
	m.Value = v
	return err
}

func (m MethodCallArgumentModel) MarshalJSON() ([]byte, error) {
	type alias MethodCallArgumentModel
	raw, err := rawOf(m.Value, m.Value != nil)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		alias
		Value json.RawMessage `json:"value,omitempty"`
	}{alias(m), raw})
}

func (m *MethodCallArgumentModel) UnmarshalJSON(b []byte) error {
	type alias MethodCallArgumentModel
	aux := struct {
		*alias
		Value json.RawMessage `json:"value,omitempty"`
	}{alias: (*alias)(m)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	v, err := valueOf(aux.Value)
	m.Value = v
	return err
}
