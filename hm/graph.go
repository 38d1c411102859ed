package hm

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/awalterschulze/gographviz"
)

type layerView struct {
	Index              int
	Kind               string
	N                  int
	SigmaGen, SigmaRec float64
	Phase              Phase
	Gen, Rec           int
	Loss               float64
}

// ToDot renders the layer chain as a graphviz graph. Recognition projections
// point up, generative projections point down.
func (n *Network) ToDot() string {
	g := gographviz.NewGraph()
	if err := g.SetName("HM"); err != nil {
		panic(err)
	}
	g.SetDir(true)

	var buf bytes.Buffer
	for i, l := range n.layers {
		u := l.Base()
		v := layerView{
			Index:    i,
			Kind:     layerKind(l),
			N:        u.N,
			SigmaGen: u.SigmaGen,
			SigmaRec: u.SigmaRec,
			Phase:    u.Phase,
			Gen:      len(l.GenerativeParams()),
			Rec:      len(l.RecognitionParams()),
			Loss:     u.Loss,
		}
		if err := layerTmpl.Execute(&buf, v); err != nil {
			panic(err)
		}
		attrs := map[string]string{
			"fontname": "Monaco",
			"shape":    "none",
			"label":    buf.String(),
		}
		g.AddNode("HM", nodeName(i), attrs)
		buf.Reset()
	}

	for i, l := range n.layers {
		u := l.Base()
		if u.Child >= 0 {
			g.AddEdge(nodeName(u.Child), nodeName(i), true, map[string]string{"label": `"W_in"`, "color": "blue"})
		}
		if u.Parent >= 0 {
			g.AddEdge(nodeName(u.Parent), nodeName(i), true, map[string]string{"label": `"W_out"`, "color": "red"})
		}
		if ff, ok := l.(*FeedforwardLayer); ok && ff.Top {
			g.AddEdge(nodeName(i), nodeName(i), true, map[string]string{"label": `"transition"`, "color": "red"})
		}
	}
	return g.String()
}

func nodeName(i int) string { return fmt.Sprintf("L%d", i) }

func layerKind(l Layer) string {
	switch l := l.(type) {
	case *InputLayer:
		return "Input"
	case *FeedforwardLayer:
		if l.Top {
			return "Top"
		}
		return "Feedforward"
	}
	return fmt.Sprintf("%T", l)
}

const layerTmplRaw = `<
<TABLE BORDER="0" CELLBORDER="1" CELLSPACING="0">
<TR><TD>Layer</TD><TD>{{.Index}} ({{.Kind}})</TD></TR>
<TR><TD>Neurons</TD><TD>{{.N}}</TD></TR>
<TR><TD>σ gen</TD><TD>{{.SigmaGen}}</TD></TR>
<TR><TD>σ rec</TD><TD>{{.SigmaRec}}</TD></TR>
<TR><TD>Phase</TD><TD>{{.Phase}}</TD></TR>
<TR><TD>Params (gen/rec)</TD><TD>{{.Gen}}/{{.Rec}}</TD></TR>
<TR><TD>Loss</TD><TD>{{printf "%.4g" .Loss}}</TD></TR>
</TABLE>
>`

var layerTmpl = template.Must(template.New("layer").Parse(layerTmplRaw))
