package stemmeta

import (
	"bytes"
	"encoding/base64"
	"encoding/json"

	"stemforge/internal/services"
)

// udtaDumpHeader is the box header MP4Box keeps at the start of a -dump-udta file.
const udtaDumpHeader = 8

// Marshal encodes m as the JSON document stored in the box.
func Marshal(m Metadata) ([]byte, error) {
	if m.Stems == nil {
		m.Stems = []Entry{}
	}
	return json.Marshal(m)
}

// EncodeBase64 returns the base64 form passed to MP4Box -udta src=base64,...
func EncodeBase64(m Metadata) (string, error) {
	raw, err := Marshal(m)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

type boxDocument struct {
	MasteringDSP *MasteringDSP `json:"mastering_dsp"`
	Version      int           `json:"version"`
	Stems        *[]Entry      `json:"stems"`
}

// Decode parses a stem box payload. Both raw JSON and base64-wrapped JSON are
// accepted. A payload that does not parse, or has no "stems" list, fails with
// services.ErrMetadataBoxCorrupt.
func Decode(payload []byte) (Metadata, error) {
	trimmed := bytes.TrimSpace(bytes.TrimRight(payload, "\x00"))
	if len(trimmed) == 0 {
		return Metadata{}, corrupt("empty payload", nil)
	}
	if trimmed[0] != '{' {
		decoded, err := base64.StdEncoding.DecodeString(string(trimmed))
		if err != nil {
			return Metadata{}, corrupt("payload is neither JSON nor base64", err)
		}
		trimmed = bytes.TrimSpace(decoded)
	}

	var doc boxDocument
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return Metadata{}, corrupt("decode json", err)
	}
	if doc.Stems == nil {
		return Metadata{}, corrupt("missing stems list", nil)
	}
	m := Metadata{Version: doc.Version, Stems: *doc.Stems, MasteringDSP: DefaultMastering()}
	if doc.MasteringDSP != nil {
		m.MasteringDSP = *doc.MasteringDSP
	}
	return m, nil
}

// UdtaDumpPayload strips the box header MP4Box usually keeps at the start of
// a `-dump-udta 0:stem` file. Dumps without the header are returned as is.
func UdtaDumpPayload(data []byte) ([]byte, error) {
	if len(data) > 0 && data[0] == '{' {
		return data, nil
	}
	if len(data) < udtaDumpHeader {
		return nil, corrupt("udta dump shorter than its header", nil)
	}
	return data[udtaDumpHeader:], nil
}

func corrupt(msg string, err error) error {
	return services.Wrap(services.ErrMetadataBoxCorrupt, services.StageProbe, "decode stem box", msg, err)
}
