package snapshot

import (
	"github.com/zeusync/scenesync/internal/core/parameter"
	"github.com/zeusync/scenesync/internal/core/scene"
)

// paramReader writes decoded records into whatever object it is pointed at.
// Its references are cleared after every object.
type paramReader struct {
	records []ParamRecord
}

func (r *paramReader) VisitParameter(d parameter.Descriptor, a parameter.Accessor) error {
	for _, rec := range r.records {
		if rec.Name != d.Name {
			continue
		}
		if rec.Value.Kind != d.Kind {
			return &parameter.MismatchError{Name: d.Name, Expected: d.Kind, Received: rec.Value.Kind}
		}
		return a.Set(rec.Value)
	}
	return nil
}

func (r *paramReader) read(target parameter.Owner, records []ParamRecord) error {
	r.records = records
	defer r.clear()
	return target.Parameters().Accept(r)
}

func (r *paramReader) clear() {
	r.records = nil
}

// Apply writes every entity record in m onto s. Records for ids that are no
// longer present are dropped. Unknown parameter names and script names are
// ignored; a kind mismatch aborts with a *parameter.MismatchError.
func Apply(s *scene.Scene, m *Message) error {
	if m == nil {
		return nil
	}
	var r paramReader
	for _, rec := range m.Entities {
		e, ok := s.FindByID(scene.ID(rec.ID))
		if !ok {
			continue
		}
		if err := r.read(e, rec.Params); err != nil {
			return err
		}
		for _, sr := range rec.Scripts {
			script, found := e.Script(sr.Name)
			if !found {
				continue
			}
			if err := r.read(script, sr.Params); err != nil {
				return err
			}
		}
	}
	return nil
}
