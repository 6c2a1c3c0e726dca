package spatial

import (
	_ "embed"
	"strconv"

	"gopkg.in/yaml.v3"
)

// speakerEntry is one physical speaker in a layout: its angle in
// degrees (0 = due front, positive clockwise looking down) and its
// channel index in the interleaved output frame. LFE is marked so
// VBAP skips it (spec.md §4.4 step 10).
type speakerEntry struct {
	AngleDeg int  `yaml:"angle_deg"`
	Channel  int  `yaml:"channel"`
	LFE      bool `yaml:"lfe"`
}

type layoutDoc struct {
	Channels int            `yaml:"channels"`
	Speakers []speakerEntry `yaml:"speakers"`
}

//go:embed layouts/4_0.yaml
var layout40YAML []byte

//go:embed layouts/4_1.yaml
var layout41YAML []byte

//go:embed layouts/5_1.yaml
var layout51YAML []byte

//go:embed layouts/6_1.yaml
var layout61YAML []byte

//go:embed layouts/7_1.yaml
var layout71YAML []byte

// surroundLayouts maps an output channel count to its embedded table,
// loaded once at package init. Each entry's speakers are data, not
// code (SPEC_FULL.md DOMAIN STACK: VBAP tables are config, loaded the way
// the rest of the pack loads declarative layout data).
var surroundLayouts = map[int]*vbapTable{}

func init() {
	for channels, raw := range map[int][]byte{
		4: layout40YAML,
		5: layout41YAML, // 4.1: 5 channels incl. LFE
		6: layout51YAML,
		7: layout61YAML,
		8: layout71YAML,
	} {
		var doc layoutDoc
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			panic("spatial: invalid embedded layout for " + strconv.Itoa(channels) + " channels: " + err.Error())
		}
		surroundLayouts[channels] = buildVBAPTable(doc)
	}
}
