package props

// LiveProvider computes live property values for a resource — those
// backed by resource metadata rather than the dead-property store
// (DAV:getetag, DAV:resourcetype, ...), per spec.md §3/§4.4.
type LiveProvider interface {
	// LiveNames lists every live property name the resource at path
	// currently exposes, used for allprop enumeration.
	LiveNames(path string) ([]QName, error)
	// LiveValue returns the live value of name for path, and whether
	// the resource actually exposes that name.
	LiveValue(path string, name QName) (Value, bool, error)
}

// Request describes one PROPFIND query, per spec.md §4.4.
type Request struct {
	AllProp  bool
	PropName bool
	// Include augments an AllProp query with additional explicitly
	// named properties a live provider does not enumerate by default,
	// per RFC 4918 §14.19.
	Include []QName
	// Names is the explicit list of properties requested when neither
	// AllProp nor PropName is set.
	Names []QName
}

// Result is the outcome of executing a PROPFIND query against one
// resource path: the properties found (value is nil when PropName is
// set: only existence is reported) and those requested but missing.
type Result struct {
	Found   map[QName]Value
	Missing []QName
}

// Execute runs req against the resource at path, consulting live before
// dead properties for an explicitly named property, per spec.md §4.4.
func Execute(store Store, live LiveProvider, path string, req Request) (Result, error) {
	dead, err := store.Get(path)
	if err != nil {
		return Result{}, err
	}

	if req.AllProp || req.PropName {
		liveNames, err := live.LiveNames(path)
		if err != nil {
			return Result{}, err
		}
		seen := make(map[QName]bool, len(liveNames)+len(dead))
		res := Result{Found: make(map[QName]Value)}
		for _, n := range liveNames {
			if seen[n] {
				continue
			}
			seen[n] = true
			if req.PropName {
				res.Found[n] = Value{}
				continue
			}
			v, ok, err := live.LiveValue(path, n)
			if err != nil {
				return Result{}, err
			}
			if ok {
				res.Found[n] = v
			}
		}
		for n, v := range dead {
			if seen[n] {
				continue
			}
			seen[n] = true
			if req.PropName {
				res.Found[n] = Value{}
			} else {
				res.Found[n] = v
			}
		}
		for _, n := range req.Include {
			if seen[n] {
				continue
			}
			seen[n] = true
			if v, ok, err := live.LiveValue(path, n); err == nil && ok {
				res.Found[n] = v
			} else if v, ok := dead[n]; ok {
				res.Found[n] = v
			} else {
				res.Missing = append(res.Missing, n)
			}
		}
		return res, nil
	}

	res := Result{Found: make(map[QName]Value, len(req.Names))}
	for _, n := range req.Names {
		if v, ok, err := live.LiveValue(path, n); err != nil {
			return Result{}, err
		} else if ok {
			res.Found[n] = v
			continue
		}
		if v, ok := dead[n]; ok {
			res.Found[n] = v
			continue
		}
		res.Missing = append(res.Missing, n)
	}
	return res, nil
}
