// Package taxonomy maps arXiv subject areas to archive and category codes.
package taxonomy

import (
	"fmt"
	"sort"
	"strings"
)

// Category is a single arXiv subject class.
type Category struct {
	Code string
	Name string
}

// Topic is a top-level subject area with the archive it is listed under.
type Topic struct {
	Name       string
	Archive    string
	Categories []Category
}

// Lookup resolves a configured topic name. Physics on its own is rejected
// because arXiv has no single physics listing.
func Lookup(name string) (Topic, error) {
	name = strings.TrimSpace(name)
	if strings.EqualFold(name, "Physics") {
		return Topic{}, fmt.Errorf("topic %q is too broad, choose a physics subtopic", name)
	}
	for _, t := range topics {
		if strings.EqualFold(t.Name, name) {
			return t, nil
		}
	}
	return Topic{}, fmt.Errorf("unknown topic %q", name)
}

// Names lists every selectable topic in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(topics))
	for _, t := range topics {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return names
}

// Resolve maps allow-list entries (codes or human-readable names) to category codes,
// preserving order and dropping repeats.
func (t Topic) Resolve(entries []string) ([]string, error) {
	var (
		codes   = make([]string, 0, len(entries))
		seen    = map[string]struct{}{}
		invalid []string
	)
	for _, entry := range entries {
		code, ok := t.code(entry)
		if !ok {
			invalid = append(invalid, entry)
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	if len(invalid) > 0 {
		return nil, fmt.Errorf("%v not valid for topic %s", invalid, t.Name)
	}
	return codes, nil
}

func (t Topic) code(entry string) (string, bool) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return "", false
	}
	if len(t.Categories) == 0 {
		if strings.EqualFold(entry, t.Archive) || strings.EqualFold(entry, t.Name) {
			return t.Archive, true
		}
		return "", false
	}
	for _, c := range t.Categories {
		if strings.EqualFold(entry, c.Code) || strings.EqualFold(entry, c.Name) {
			return c.Code, true
		}
	}
	return "", false
}

// Codes lists every category code of the topic in declaration order.
func (t Topic) Codes() []string {
	codes := make([]string, 0, len(t.Categories))
	for _, c := range t.Categories {
		codes = append(codes, c.Code)
	}
	return codes
}

func cats(prefix string, pairs ...string) []Category {
	out := make([]Category, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, Category{Code: prefix + pairs[i], Name: pairs[i+1]})
	}
	return out
}

var topics = []Topic{
	{Name: "Astrophysics", Archive: "astro-ph", Categories: cats("astro-ph.",
		"GA", "Astrophysics of Galaxies",
		"CO", "Cosmology and Nongalactic Astrophysics",
		"EP", "Earth and Planetary Astrophysics",
		"HE", "High Energy Astrophysical Phenomena",
		"IM", "Instrumentation and Methods for Astrophysics",
		"SR", "Solar and Stellar Astrophysics",
	)},
	{Name: "Condensed Matter", Archive: "cond-mat", Categories: cats("cond-mat.",
		"dis-nn", "Disordered Systems and Neural Networks",
		"mtrl-sci", "Materials Science",
		"mes-hall", "Mesoscale and Nanoscale Physics",
		"other", "Other Condensed Matter",
		"quant-gas", "Quantum Gases",
		"soft", "Soft Condensed Matter",
		"stat-mech", "Statistical Mechanics",
		"str-el", "Strongly Correlated Electrons",
		"supr-con", "Superconductivity",
	)},
	{Name: "General Relativity and Quantum Cosmology", Archive: "gr-qc"},
	{Name: "High Energy Physics - Experiment", Archive: "hep-ex"},
	{Name: "High Energy Physics - Lattice", Archive: "hep-lat"},
	{Name: "High Energy Physics - Phenomenology", Archive: "hep-ph"},
	{Name: "High Energy Physics - Theory", Archive: "hep-th"},
	{Name: "Mathematical Physics", Archive: "math-ph"},
	{Name: "Nonlinear Sciences", Archive: "nlin", Categories: cats("nlin.",
		"AO", "Adaptation and Self-Organizing Systems",
		"CG", "Cellular Automata and Lattice Gases",
		"CD", "Chaotic Dynamics",
		"SI", "Exactly Solvable and Integrable Systems",
		"PS", "Pattern Formation and Solitons",
	)},
	{Name: "Nuclear Experiment", Archive: "nucl-ex"},
	{Name: "Nuclear Theory", Archive: "nucl-th"},
	{Name: "Physics (other)", Archive: "physics", Categories: cats("physics.",
		"acc-ph", "Accelerator Physics",
		"app-ph", "Applied Physics",
		"ao-ph", "Atmospheric and Oceanic Physics",
		"atm-clus", "Atomic and Molecular Clusters",
		"atom-ph", "Atomic Physics",
		"bio-ph", "Biological Physics",
		"chem-ph", "Chemical Physics",
		"class-ph", "Classical Physics",
		"comp-ph", "Computational Physics",
		"data-an", "Data Analysis, Statistics and Probability",
		"flu-dyn", "Fluid Dynamics",
		"gen-ph", "General Physics",
		"geo-ph", "Geophysics",
		"hist-ph", "History and Philosophy of Physics",
		"ins-det", "Instrumentation and Detectors",
		"med-ph", "Medical Physics",
		"optics", "Optics",
		"soc-ph", "Physics and Society",
		"ed-ph", "Physics Education",
		"plasm-ph", "Plasma Physics",
		"pop-ph", "Popular Physics",
		"space-ph", "Space Physics",
	)},
	{Name: "Quantum Physics", Archive: "quant-ph"},
	{Name: "Mathematics", Archive: "math", Categories: cats("math.",
		"AG", "Algebraic Geometry",
		"AT", "Algebraic Topology",
		"AP", "Analysis of PDEs",
		"CT", "Category Theory",
		"CA", "Classical Analysis and ODEs",
		"CO", "Combinatorics",
		"AC", "Commutative Algebra",
		"CV", "Complex Variables",
		"DG", "Differential Geometry",
		"DS", "Dynamical Systems",
		"FA", "Functional Analysis",
		"GM", "General Mathematics",
		"GN", "General Topology",
		"GT", "Geometric Topology",
		"GR", "Group Theory",
		"HO", "History and Overview",
		"IT", "Information Theory",
		"KT", "K-Theory and Homology",
		"LO", "Logic",
		"MP", "Mathematical Physics",
		"MG", "Metric Geometry",
		"NT", "Number Theory",
		"NA", "Numerical Analysis",
		"OA", "Operator Algebras",
		"OC", "Optimization and Control",
		"PR", "Probability",
		"QA", "Quantum Algebra",
		"RT", "Representation Theory",
		"RA", "Rings and Algebras",
		"SP", "Spectral Theory",
		"ST", "Statistics Theory",
		"SG", "Symplectic Geometry",
	)},
	{Name: "Computer Science", Archive: "cs", Categories: cats("cs.",
		"AI", "Artificial Intelligence",
		"CL", "Computation and Language",
		"CC", "Computational Complexity",
		"CE", "Computational Engineering, Finance, and Science",
		"CG", "Computational Geometry",
		"GT", "Computer Science and Game Theory",
		"CV", "Computer Vision and Pattern Recognition",
		"CY", "Computers and Society",
		"CR", "Cryptography and Security",
		"DS", "Data Structures and Algorithms",
		"DB", "Databases",
		"DL", "Digital Libraries",
		"DM", "Discrete Mathematics",
		"DC", "Distributed, Parallel, and Cluster Computing",
		"ET", "Emerging Technologies",
		"FL", "Formal Languages and Automata Theory",
		"GL", "General Literature",
		"GR", "Graphics",
		"AR", "Hardware Architecture",
		"HC", "Human-Computer Interaction",
		"IR", "Information Retrieval",
		"IT", "Information Theory",
		"LO", "Logic in Computer Science",
		"LG", "Machine Learning",
		"MS", "Mathematical Software",
		"MA", "Multiagent Systems",
		"MM", "Multimedia",
		"NI", "Networking and Internet Architecture",
		"NE", "Neural and Evolutionary Computing",
		"NA", "Numerical Analysis",
		"OS", "Operating Systems",
		"OH", "Other Computer Science",
		"PF", "Performance",
		"PL", "Programming Languages",
		"RO", "Robotics",
		"SI", "Social and Information Networks",
		"SE", "Software Engineering",
		"SD", "Sound",
		"SC", "Symbolic Computation",
		"SY", "Systems and Control",
	)},
	{Name: "Quantitative Biology", Archive: "q-bio", Categories: cats("q-bio.",
		"BM", "Biomolecules",
		"CB", "Cell Behavior",
		"GN", "Genomics",
		"MN", "Molecular Networks",
		"NC", "Neurons and Cognition",
		"OT", "Other Quantitative Biology",
		"PE", "Populations and Evolution",
		"QM", "Quantitative Methods",
		"SC", "Subcellular Processes",
		"TO", "Tissues and Organs",
	)},
	{Name: "Quantitative Finance", Archive: "q-fin", Categories: cats("q-fin.",
		"CP", "Computational Finance",
		"EC", "Economics",
		"GN", "General Finance",
		"MF", "Mathematical Finance",
		"PM", "Portfolio Management",
		"PR", "Pricing of Securities",
		"RM", "Risk Management",
		"ST", "Statistical Finance",
		"TR", "Trading and Market Microstructure",
	)},
	{Name: "Statistics", Archive: "stat", Categories: cats("stat.",
		"AP", "Applications",
		"CO", "Computation",
		"ML", "Machine Learning",
		"ME", "Methodology",
		"OT", "Other Statistics",
		"TH", "Statistics Theory",
	)},
	{Name: "Electrical Engineering and Systems Science", Archive: "eess", Categories: cats("eess.",
		"AS", "Audio and Speech Processing",
		"IV", "Image and Video Processing",
		"SP", "Signal Processing",
		"SY", "Systems and Control",
	)},
	{Name: "Economics", Archive: "econ", Categories: cats("econ.",
		"EM", "Econometrics",
		"GN", "General Economics",
		"TH", "Theoretical Economics",
	)},
}
