package eonsim

// desc-topo.go holds the serializable descriptions of a simulation: the optical topology
// (TopoCfg) and the experiment run over it (ExpCfg).  Both are read from json or yaml,
// selected by file extension, and can be built in code and written back out.

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// NodeDesc describes an optical cross-connect.  A port count of zero leaves grooming unbounded
type NodeDesc struct {
	ID                  int `json:"id" yaml:"id"`
	GroomingInputPorts  int `json:"groominginputports" yaml:"groominginputports"`
	GroomingOutputPorts int `json:"groomingoutputports" yaml:"groomingoutputports"`
}

// LinkDesc describes a directed fiber.  Slots, when positive, overrides the topology-wide slot count
type LinkDesc struct {
	ID     int     `json:"id" yaml:"id"`
	Src    int     `json:"src" yaml:"src"`
	Dst    int     `json:"dst" yaml:"dst"`
	Delay  float64 `json:"delay" yaml:"delay"`
	Weight float64 `json:"weight" yaml:"weight"`
	Slots  int     `json:"slots,omitempty" yaml:"slots,omitempty"`
}

// TopoCfg describes an optical network
type TopoCfg struct {
	Name               string     `json:"name" yaml:"name"`
	Grid               string     `json:"grid" yaml:"grid"`
	Slots              int        `json:"slots" yaml:"slots"`
	Guardband          int        `json:"guardband" yaml:"guardband"`
	SlotSize           float64    `json:"slotsize" yaml:"slotsize"`
	WavelengthCapacity int        `json:"wavelengthcapacity" yaml:"wavelengthcapacity"`
	Bidirectional      bool       `json:"bidirectional" yaml:"bidirectional"`
	Nodes              []NodeDesc `json:"nodes" yaml:"nodes"`
	Links              []LinkDesc `json:"links" yaml:"links"`
}

// CreateTopoCfg is a constructor for a topology description built in code
func CreateTopoCfg(name, grid string, slots, guardband int) *TopoCfg {
	tc := new(TopoCfg)
	tc.Name = name
	tc.Grid = grid
	tc.Slots = slots
	tc.Guardband = guardband
	tc.SlotSize = 12.5
	tc.WavelengthCapacity = 10000
	tc.Nodes = []NodeDesc{}
	tc.Links = []LinkDesc{}
	return tc
}

// AddNode appends a node, giving it the next node id
func (tc *TopoCfg) AddNode(groomIn, groomOut int) int {
	id := len(tc.Nodes)
	tc.Nodes = append(tc.Nodes, NodeDesc{ID: id, GroomingInputPorts: groomIn, GroomingOutputPorts: groomOut})
	return id
}

// AddLink appends a link, giving it the next link id
func (tc *TopoCfg) AddLink(src, dst int, weight float64) int {
	id := len(tc.Links)
	tc.Links = append(tc.Links, LinkDesc{ID: id, Src: src, Dst: dst, Weight: weight, Delay: weight / 2.0e5})
	return id
}

// linkSlots is the number of slots on the described link
func (tc *TopoCfg) linkSlots(ld LinkDesc) int {
	if ld.Slots > 0 {
		return ld.Slots
	}
	return tc.Slots
}

// Validate checks the description for every problem it can find and reports them all at once
func (tc *TopoCfg) Validate() error {
	errs := []error{}

	grid, ok := gridFromStr(tc.Grid)
	if !ok {
		errs = append(errs, fmt.Errorf("topology %s: unknown grid %q", tc.Name, tc.Grid))
	}
	if tc.Slots < 1 {
		errs = append(errs, fmt.Errorf("topology %s: slot count %d must be positive", tc.Name, tc.Slots))
	}
	if tc.Guardband < 0 {
		errs = append(errs, fmt.Errorf("topology %s: guard band %d is negative", tc.Name, tc.Guardband))
	}
	if grid == ElasticGrid && tc.SlotSize <= 0.0 {
		errs = append(errs, fmt.Errorf("topology %s: slot size %g must be positive", tc.Name, tc.SlotSize))
	}
	if grid == FixedGrid && tc.WavelengthCapacity < 1 {
		errs = append(errs, fmt.Errorf("topology %s: wavelength capacity %d must be positive", tc.Name, tc.WavelengthCapacity))
	}
	if len(tc.Nodes) == 0 {
		errs = append(errs, fmt.Errorf("topology %s: no nodes", tc.Name))
	}

	for idx, nd := range tc.Nodes {
		if nd.ID != idx {
			errs = append(errs, fmt.Errorf("topology %s: node at position %d has id %d", tc.Name, idx, nd.ID))
		}
		if nd.GroomingInputPorts < 0 || nd.GroomingOutputPorts < 0 {
			errs = append(errs, fmt.Errorf("topology %s: node %d has negative port count", tc.Name, nd.ID))
		}
	}

	ends := []intPair{}
	for idx, ld := range tc.Links {
		if ld.ID != idx {
			errs = append(errs, fmt.Errorf("topology %s: link at position %d has id %d", tc.Name, idx, ld.ID))
		}
		if ld.Src < 0 || ld.Src >= len(tc.Nodes) || ld.Dst < 0 || ld.Dst >= len(tc.Nodes) {
			errs = append(errs, fmt.Errorf("topology %s: link %d joins unknown node", tc.Name, ld.ID))
			continue
		}
		if ld.Src == ld.Dst {
			errs = append(errs, fmt.Errorf("topology %s: link %d is a self loop", tc.Name, ld.ID))
		}
		if ld.Weight < 0.0 || ld.Delay < 0.0 {
			errs = append(errs, fmt.Errorf("topology %s: link %d has negative weight or delay", tc.Name, ld.ID))
		}
		if ld.Slots < 0 {
			errs = append(errs, fmt.Errorf("topology %s: link %d has negative slot count", tc.Name, ld.ID))
		}
		pair := intPair{i: ld.Src, j: ld.Dst}
		if slices.Contains(ends, pair) {
			errs = append(errs, fmt.Errorf("topology %s: link %d duplicates %d->%d", tc.Name, ld.ID, ld.Src, ld.Dst))
		}
		ends = append(ends, pair)
	}

	return ReportErrs(errs)
}

// WriteToFile serializes the TopoCfg and writes to the file whose name is given as an input argument.
// Extension of the file name selects whether serialization is to json or to yaml format.
func (tc *TopoCfg) WriteToFile(filename string) error {
	return writeDesc(filename, *tc)
}

// ReadTopoCfg deserializes a slice of bytes into a TopoCfg.  If the input arg of bytes
// is empty, the file whose name is given as an argument is read.
func ReadTopoCfg(topoFileName string, useYAML bool, dict []byte) (*TopoCfg, error) {
	example := TopoCfg{}
	if err := readDesc(topoFileName, "topology", useYAML, dict, &example); err != nil {
		return nil, err
	}
	return &example, nil
}

// CallTypeDesc is one kind of call the workload draws, with the weight it is drawn with
type CallTypeDesc struct {
	Rate   int     `json:"rate" yaml:"rate"`
	CoS    int     `json:"cos" yaml:"cos"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// ExpCfg describes an experiment: the strategy, the workload, and what to record
type ExpCfg struct {
	Name            string         `json:"name" yaml:"name"`
	Strategy        string         `json:"strategy" yaml:"strategy"`
	Seed            int            `json:"seed" yaml:"seed"`
	Calls           int            `json:"calls" yaml:"calls"`
	MeanHoldingTime float64        `json:"meanholdingtime" yaml:"meanholdingtime"`
	CallTypes       []CallTypeDesc `json:"calltypes" yaml:"calltypes"`
	Oracle          string         `json:"oracle" yaml:"oracle"`
	K               int            `json:"k,omitempty" yaml:"k,omitempty"`
	Modulation      string         `json:"modulation,omitempty" yaml:"modulation,omitempty"`
	Trace           bool           `json:"trace" yaml:"trace"`
}

// CreateExpCfg is a constructor for an experiment description built in code
func CreateExpCfg(name, strategy string, calls int, meanHoldingTime float64) *ExpCfg {
	xc := new(ExpCfg)
	xc.Name = name
	xc.Strategy = strategy
	xc.Calls = calls
	xc.MeanHoldingTime = meanHoldingTime
	xc.CallTypes = []CallTypeDesc{}
	xc.Oracle = "none"
	xc.K = 3
	xc.Modulation = "QPSK"
	return xc
}

// AddCallType appends a call type
func (xc *ExpCfg) AddCallType(rate, cos int, weight float64) {
	xc.CallTypes = append(xc.CallTypes, CallTypeDesc{Rate: rate, CoS: cos, Weight: weight})
}

// Validate checks the description for every problem it can find and reports them all at once
func (xc *ExpCfg) Validate() error {
	errs := []error{}
	if len(xc.Strategy) == 0 {
		errs = append(errs, fmt.Errorf("experiment %s: no strategy named", xc.Name))
	}
	if xc.Calls < 0 {
		errs = append(errs, fmt.Errorf("experiment %s: call count %d is negative", xc.Name, xc.Calls))
	}
	if xc.MeanHoldingTime <= 0.0 {
		errs = append(errs, fmt.Errorf("experiment %s: mean holding time %g must be positive", xc.Name, xc.MeanHoldingTime))
	}
	if len(xc.CallTypes) == 0 {
		errs = append(errs, fmt.Errorf("experiment %s: no call types", xc.Name))
	}
	totalWeight := 0.0
	for idx, ct := range xc.CallTypes {
		if ct.Rate < 1 || ct.CoS < 0 || ct.Weight < 0.0 {
			errs = append(errs, fmt.Errorf("experiment %s: call type %d is malformed", xc.Name, idx))
		}
		totalWeight += ct.Weight
	}
	if len(xc.CallTypes) > 0 && totalWeight <= 0.0 {
		errs = append(errs, fmt.Errorf("experiment %s: call type weights sum to zero", xc.Name))
	}
	switch xc.Oracle {
	case "", "none", "reach", "snr", "always":
	default:
		errs = append(errs, fmt.Errorf("experiment %s: unknown oracle %q", xc.Name, xc.Oracle))
	}
	if xc.K < 0 {
		errs = append(errs, fmt.Errorf("experiment %s: k %d is negative", xc.Name, xc.K))
	}
	if len(xc.Modulation) > 0 {
		if _, err := ParseModulation(xc.Modulation); err != nil {
			errs = append(errs, fmt.Errorf("experiment %s: %w", xc.Name, err))
		}
	}
	return ReportErrs(errs)
}

// WriteToFile serializes the ExpCfg, json or yaml by file extension
func (xc *ExpCfg) WriteToFile(filename string) error {
	return writeDesc(filename, *xc)
}

// ReadExpCfg deserializes a slice of bytes into an ExpCfg.  If the input arg of bytes
// is empty, the file whose name is given as an argument is read.
func ReadExpCfg(expFileName string, useYAML bool, dict []byte) (*ExpCfg, error) {
	example := ExpCfg{}
	if err := readDesc(expFileName, "experiment", useYAML, dict, &example); err != nil {
		return nil, err
	}
	return &example, nil
}

// GetExperimentDicts reads the topology and experiment descriptions named in syn
// under keys "topo" and "exp", choosing json or yaml by file extension
func GetExperimentDicts(syn map[string]string) (*TopoCfg, *ExpCfg, error) {
	var empty []byte = make([]byte, 0)
	var errs []error

	tc, err := ReadTopoCfg(syn["topo"], useYAMLFor(syn["topo"]), empty)
	errs = append(errs, err)

	xc, err := ReadExpCfg(syn["exp"], useYAMLFor(syn["exp"]), empty)
	errs = append(errs, err)

	if err := ReportErrs(errs); err != nil {
		return nil, nil, err
	}
	return tc, xc, nil
}

func useYAMLFor(filename string) bool {
	ext := path.Ext(filename)
	return ext == ".yaml" || ext == ".yml" || ext == ".YAML"
}

// readDesc fills desc from dict, or from the named file when dict is empty
func readDesc(filename, what string, useYAML bool, dict []byte, desc any) error {
	var err error

	if len(dict) == 0 {
		fileInfo, serr := os.Stat(filename)
		if serr != nil || fileInfo.IsDir() {
			return fmt.Errorf("%s %s does not exist or cannot be read", what, filename)
		}
		dict, err = os.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("read %s %s: %w", what, filename, err)
		}
	}

	if useYAML {
		err = yaml.Unmarshal(dict, desc)
	} else {
		err = json.Unmarshal(dict, desc)
	}
	if err != nil {
		return fmt.Errorf("decode %s %s: %w", what, filename, err)
	}
	return nil
}

// writeDesc serializes desc to json or yaml, by the extension of filename
func writeDesc(filename string, desc any) error {
	var bytes []byte
	var merr error

	pathExt := path.Ext(filename)
	switch pathExt {
	case ".yaml", ".YAML", ".yml":
		bytes, merr = yaml.Marshal(desc)
	case ".json", ".JSON":
		bytes, merr = json.MarshalIndent(desc, "", "\t")
	default:
		return fmt.Errorf("cannot tell serialization of %s from its extension", filename)
	}
	if merr != nil {
		return merr
	}

	return os.WriteFile(filename, bytes, 0o644)
}

// ReportErrs transforms a list of errors and transforms the non-nil ones into a single error
// with comma-separated report of all the constituent errors, and returns it.
func ReportErrs(errs []error) error {
	errMsg := make([]string, 0)
	for _, err := range errs {
		if err != nil {
			errMsg = append(errMsg, err.Error())
		}
	}
	if len(errMsg) == 0 {
		return nil
	}

	return errors.New(strings.Join(errMsg, ","))
}
