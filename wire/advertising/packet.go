package advertising

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// AD Types (Advertising Data Types) - EIR/AD format
const (
	ADTypeFlags                        = 0x01 // Flags
	ADTypeIncomplete128BitServiceUUIDs = 0x06 // Incomplete List of 128-bit Service UUIDs
	ADTypeComplete128BitServiceUUIDs   = 0x07 // Complete List of 128-bit Service UUIDs
	ADTypeShortenedLocalName           = 0x08 // Shortened Local Name
	ADTypeCompleteLocalName            = 0x09 // Complete Local Name
	ADTypeTxPowerLevel                 = 0x0A // Tx Power Level
	ADTypeManufacturerSpecificData     = 0xFF // Manufacturer Specific Data
)

// Advertising Flags (used in ADTypeFlags)
const (
	FlagLEGeneralDiscoverableMode = 0x02
	FlagBREDRNotSupported         = 0x04
)

// MaxAdvertisingDataLen is the BLE 4.x limit for both the advertising
// payload and the scan response payload.
const MaxAdvertisingDataLen = 31

// ADStructure represents a single TLV (Type-Length-Value) structure in advertising data
// Format: [Length: 1 byte] [Type: 1 byte] [Data: N bytes]
// Note: Length includes the Type byte but not itself
type ADStructure struct {
	Type byte
	Data []byte
}

// Fields is the decoded view of an advertisement plus its scan response.
type Fields struct {
	LocalName        string
	ServiceUUIDs     []string
	CompanyID        uint16
	ManufacturerData []byte
	TxPowerLevel     *int8
	Flags            byte
}

// HasService reports whether the advertisement lists the given 128-bit service.
func (f *Fields) HasService(serviceUUID string) bool {
	want, err := uuid.Parse(serviceUUID)
	if err != nil {
		return false
	}
	for _, s := range f.ServiceUUIDs {
		if got, err := uuid.Parse(s); err == nil && got == want {
			return true
		}
	}
	return false
}

// EncodeADStructures encodes multiple AD structures into a single advertising data payload
func EncodeADStructures(structures []ADStructure) ([]byte, error) {
	var buf []byte

	for _, s := range structures {
		length := 1 + len(s.Data)
		if length > 255 {
			return nil, fmt.Errorf("AD structure too long: %d bytes (max 255)", length)
		}

		buf = append(buf, byte(length))
		buf = append(buf, s.Type)
		buf = append(buf, s.Data...)
	}

	if len(buf) > MaxAdvertisingDataLen {
		return nil, fmt.Errorf("total advertising data exceeds %d bytes: %d", MaxAdvertisingDataLen, len(buf))
	}

	return buf, nil
}

// DecodeADStructures parses advertising data into individual AD structures
func DecodeADStructures(data []byte) ([]ADStructure, error) {
	var structures []ADStructure
	offset := 0

	for offset < len(data) {
		length := int(data[offset])
		if length == 0 {
			// Padding
			break
		}

		offset++
		if offset+length > len(data) {
			return nil, fmt.Errorf("AD structure length exceeds data: length=%d, remaining=%d", length, len(data)-offset)
		}

		adType := data[offset]
		adData := make([]byte, length-1)
		copy(adData, data[offset+1:offset+length])
		offset += length

		structures = append(structures, ADStructure{
			Type: adType,
			Data: adData,
		})
	}

	return structures, nil
}

// NewFlagsAD creates a flags AD structure
func NewFlagsAD(flags byte) ADStructure {
	return ADStructure{Type: ADTypeFlags, Data: []byte{flags}}
}

// NewCompleteLocalNameAD creates a complete local name AD structure
func NewCompleteLocalNameAD(name string) ADStructure {
	return ADStructure{Type: ADTypeCompleteLocalName, Data: []byte(name)}
}

// NewComplete128BitServiceUUIDsAD creates a complete 128-bit service UUIDs AD structure.
// UUIDs go over the air little-endian, the reverse of their string form.
func NewComplete128BitServiceUUIDsAD(serviceUUIDs []string) (ADStructure, error) {
	data := make([]byte, 0, len(serviceUUIDs)*16)
	for _, s := range serviceUUIDs {
		u, err := uuid.Parse(s)
		if err != nil {
			return ADStructure{}, fmt.Errorf("invalid service uuid %q: %w", s, err)
		}
		for i := 15; i >= 0; i-- {
			data = append(data, u[i])
		}
	}
	return ADStructure{Type: ADTypeComplete128BitServiceUUIDs, Data: data}, nil
}

// NewTxPowerLevelAD creates a Tx power level AD structure
func NewTxPowerLevelAD(powerLevel int8) ADStructure {
	return ADStructure{Type: ADTypeTxPowerLevel, Data: []byte{byte(powerLevel)}}
}

// NewManufacturerSpecificDataAD creates a manufacturer-specific data AD structure
func NewManufacturerSpecificDataAD(companyID uint16, data []byte) ADStructure {
	payload := make([]byte, 2+len(data))
	binary.LittleEndian.PutUint16(payload[0:2], companyID)
	copy(payload[2:], data)
	return ADStructure{Type: ADTypeManufacturerSpecificData, Data: payload}
}

// Parse decodes an advertising payload and an optional scan response into Fields.
// Scan response values win over advertising values for the local name.
func Parse(advData, scanResponse []byte) (*Fields, error) {
	fields := &Fields{}
	for _, payload := range [][]byte{advData, scanResponse} {
		if len(payload) == 0 {
			continue
		}
		structures, err := DecodeADStructures(payload)
		if err != nil {
			return nil, err
		}
		if err := fields.apply(structures); err != nil {
			return nil, err
		}
	}
	return fields, nil
}

func (f *Fields) apply(structures []ADStructure) error {
	for _, s := range structures {
		switch s.Type {
		case ADTypeFlags:
			if len(s.Data) > 0 {
				f.Flags = s.Data[0]
			}
		case ADTypeCompleteLocalName, ADTypeShortenedLocalName:
			f.LocalName = string(s.Data)
		case ADTypeComplete128BitServiceUUIDs, ADTypeIncomplete128BitServiceUUIDs:
			if len(s.Data)%16 != 0 {
				return errors.New("128-bit service uuid list has a partial entry")
			}
			for i := 0; i < len(s.Data); i += 16 {
				var u uuid.UUID
				for j := 0; j < 16; j++ {
					u[j] = s.Data[i+15-j]
				}
				f.ServiceUUIDs = append(f.ServiceUUIDs, u.String())
			}
		case ADTypeTxPowerLevel:
			if len(s.Data) == 1 {
				level := int8(s.Data[0])
				f.TxPowerLevel = &level
			}
		case ADTypeManufacturerSpecificData:
			if len(s.Data) >= 2 {
				f.CompanyID = binary.LittleEndian.Uint16(s.Data[0:2])
				f.ManufacturerData = append([]byte(nil), s.Data[2:]...)
			}
		}
	}
	return nil
}
