package protocol

import (
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

type xmlArg struct {
	Name      string `xml:"name,attr"`
	Type      string `xml:"type,attr"`
	Interface string `xml:"interface,attr"`
	AllowNull string `xml:"allow-null,attr"`
}

type xmlMessage struct {
	Name  string    `xml:"name,attr"`
	Type  string    `xml:"type,attr"`
	Since string    `xml:"since,attr"`
	Args  []*xmlArg `xml:"arg"`
}

type xmlInterface struct {
	Name     string        `xml:"name,attr"`
	Version  string        `xml:"version,attr"`
	Requests []*xmlMessage `xml:"request"`
	Events   []*xmlMessage `xml:"event"`
}

type xmlProtocol struct {
	Name       string          `xml:"name,attr"`
	Interfaces []*xmlInterface `xml:"interface"`
}

// LoadXML parses a protocol description in the upstream XML format.
func LoadXML(r io.Reader) ([]*InterfaceSpec, error) {
	p := &xmlProtocol{}
	if err := xml.NewDecoder(r).Decode(p); err != nil {
		return nil, errors.Wrap(err, "unable to parse xml")
	}

	specs := make([]*InterfaceSpec, 0, len(p.Interfaces))
	for _, xi := range p.Interfaces {
		spec, err := convertInterface(xi)
		if err != nil {
			return nil, errors.Wrapf(err, "protocol %s", p.Name)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// LoadFile parses one protocol XML file.
func LoadFile(path string) ([]*InterfaceSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open protocol file")
	}
	defer f.Close()

	specs, err := LoadXML(f)
	return specs, errors.Wrap(err, path)
}

// LoadDir parses every *.xml file in dir, in name order.
func LoadDir(dir string) ([]*InterfaceSpec, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.xml"))
	if err != nil {
		return nil, errors.Wrap(err, "unable to list protocol files")
	}
	sort.Strings(paths)

	var specs []*InterfaceSpec
	for _, path := range paths {
		loaded, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		specs = append(specs, loaded...)
	}
	return specs, nil
}

func convertInterface(xi *xmlInterface) (*InterfaceSpec, error) {
	version, err := parseVersion(xi.Version, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "interface %s version", xi.Name)
	}

	requests, err := convertMessages(xi.Requests)
	if err != nil {
		return nil, errors.Wrapf(err, "interface %s", xi.Name)
	}
	events, err := convertMessages(xi.Events)
	if err != nil {
		return nil, errors.Wrapf(err, "interface %s", xi.Name)
	}

	return &InterfaceSpec{
		Name:     xi.Name,
		Version:  version,
		Requests: requests,
		Events:   events,
	}, nil
}

func convertMessages(in []*xmlMessage) ([]MessageSpec, error) {
	out := make([]MessageSpec, 0, len(in))
	for n, xm := range in {
		since, err := parseVersion(xm.Since, 1)
		if err != nil {
			return nil, errors.Wrapf(err, "%s since", xm.Name)
		}

		m := MessageSpec{
			Name:       xm.Name,
			Opcode:     uint16(n),
			Since:      since,
			Destructor: xm.Type == "destructor",
		}
		for _, xa := range xm.Args {
			t, ok := ParseArgType(xa.Type)
			if !ok {
				return nil, errors.Errorf("%s.%s: unknown argument type %q", xm.Name, xa.Name, xa.Type)
			}
			m.Args = append(m.Args, ArgumentSpec{
				Name:      xa.Name,
				Type:      t,
				Interface: xa.Interface,
				AllowNull: xa.AllowNull == "true",
			})
		}
		out = append(out, m)
	}
	return out, nil
}

func parseVersion(s string, fallback uint32) (uint32, error) {
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
