package models

import (
	"greendrake/haggle/internal/utils"
)

// IBase is implemented by every document that carries a generated SixID.
type IBase interface {
	GenIDIfEmpty()
	GenID()
	GetID() utils.SixID
}

type Base struct {
	ID utils.SixID `bson:"_id,omitempty" json:"id,omitempty"`
}

func (m *Base) GenIDIfEmpty() {
	if m.ID.IsZero() {
		m.GenID()
	}
}

func (m *Base) GenID() {
	m.ID = utils.NewSixID()
}

func (m *Base) GetID() utils.SixID {
	return m.ID
}
