// =============================================================================
// Assembly Uploader - XML Writer Module
// =============================================================================
//
// This module is responsible for generating the XML documents sent to the ENA
// drop-box: the study registration, the submission actions and the release
// request.
//
// XML STRUCTURE:
//   The registration document follows this nesting pattern:
//
//   <PROJECT_SET>
//     <PROJECT alias="PRJEB41657_assembly" center_name="EMG">
//       <TITLE>Metagenome assembly of PRJEB41657 data set (...)</TITLE>
//       <DESCRIPTION>The assembly was derived from ...</DESCRIPTION>
//       <SUBMISSION_PROJECT>
//         <SEQUENCING_PROJECT/>
//       </SUBMISSION_PROJECT>
//       <PROJECT_LINKS>                    <!-- Only with a publication -->
//         <PROJECT_LINK>
//           <XREF_LINK>
//             <DB>PUBMED</DB>
//             <ID>1234</ID>
//           </XREF_LINK>
//         </PROJECT_LINK>
//       </PROJECT_LINKS>
//       <PROJECT_ATTRIBUTES>
//         <PROJECT_ATTRIBUTE>
//           <TAG>new_study_type</TAG>
//           <VALUE>metagenome assembly</VALUE>
//         </PROJECT_ATTRIBUTE>
//       </PROJECT_ATTRIBUTES>
//     </PROJECT>
//   </PROJECT_SET>
//
// OUTPUT FORMAT:
//   Documents are pretty printed the way ENA's own tooling writes them: a
//   bare <?xml version="1.0" ?> declaration, one tab per nesting level,
//   text-only elements on a single line and empty elements self-closed.
//
// =============================================================================

package xmlwriter

import (
	"bytes"
	"strconv"
	"strings"
)

// Declaration is written at the top of every document.
const Declaration = `<?xml version="1.0" ?>`

// =============================================================================
// ELEMENT TREE
// =============================================================================

// Attr is an element attribute. Attributes keep their insertion order.
type Attr struct {
	Name  string
	Value string
}

// Element is a node of a document under construction.
type Element struct {
	Name     string
	Attrs    []Attr
	Text     string
	Children []*Element
}

// NewElement creates an element with no attributes or content.
func NewElement(name string) *Element {
	return &Element{Name: name}
}

// SetAttr sets an attribute, replacing an existing one of the same name.
func (e *Element) SetAttr(name, value string) *Element {
	for i := range e.Attrs {
		if e.Attrs[i].Name == name {
			e.Attrs[i].Value = value
			return e
		}
	}
	e.Attrs = append(e.Attrs, Attr{Name: name, Value: value})

	return e
}

// SubElement appends a new child element and returns it.
func (e *Element) SubElement(name string) *Element {
	child := NewElement(name)
	e.Children = append(e.Children, child)

	return child
}

// TextElement appends a child holding only text.
func (e *Element) TextElement(name, text string) *Element {
	child := e.SubElement(name)
	child.Text = text

	return child
}

// =============================================================================
// RENDERING
// =============================================================================

// Render serializes a document rooted at root, declaration included.
func Render(root *Element) []byte {
	var buffer bytes.Buffer

	buffer.WriteString(Declaration)
	buffer.WriteString("\n")
	writeElement(&buffer, root, "\t", 0)

	return buffer.Bytes()
}

// writeElement writes an XML element to the buffer with indentation.
func writeElement(buffer *bytes.Buffer, element *Element, indent string, level int) {
	writeIndent(buffer, indent, level)

	buffer.WriteString("<")
	buffer.WriteString(element.Name)

	for _, attr := range element.Attrs {
		buffer.WriteString(" ")
		buffer.WriteString(attr.Name)
		buffer.WriteString(`="`)
		buffer.WriteString(escapeAttr(attr.Value))
		buffer.WriteString(`"`)
	}

	if len(element.Children) == 0 && element.Text == "" {
		buffer.WriteString("/>\n")
		return
	}

	buffer.WriteString(">")

	if len(element.Children) == 0 {
		buffer.WriteString(escapeText(element.Text))
	} else {
		buffer.WriteString("\n")
		if element.Text != "" {
			writeIndent(buffer, indent, level+1)
			buffer.WriteString(escapeText(element.Text))
			buffer.WriteString("\n")
		}

		for _, child := range element.Children {
			writeElement(buffer, child, indent, level+1)
		}

		writeIndent(buffer, indent, level)
	}

	buffer.WriteString("</")
	buffer.WriteString(element.Name)
	buffer.WriteString(">\n")
}

func writeIndent(buffer *bytes.Buffer, indent string, level int) {
	for i := 0; i < level; i++ {
		buffer.WriteString(indent)
	}
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
)

// escapeText escapes character data.
func escapeText(s string) string {
	return textEscaper.Replace(s)
}

// escapeAttr escapes an attribute value.
func escapeAttr(s string) string {
	return attrEscaper.Replace(s)
}

// =============================================================================
// ENA DOCUMENTS
// =============================================================================

// ProjectOptions describes an assembly study registration.
type ProjectOptions struct {
	Alias       string
	CenterName  string
	Title       string
	Description string

	// PubMedID links a publication when non-zero.
	PubMedID int

	// TPA marks the study as a third party assembly.
	TPA bool

	// StudyType is the value of the new_study_type attribute,
	// e.g. "metagenome assembly".
	StudyType string
}

// ProjectSet builds the PROJECT_SET registration document.
func ProjectSet(opts ProjectOptions) *Element {
	projectSet := NewElement("PROJECT_SET")

	project := projectSet.SubElement("PROJECT")
	project.SetAttr("alias", opts.Alias)
	project.SetAttr("center_name", opts.CenterName)

	project.TextElement("TITLE", opts.Title)
	project.TextElement("DESCRIPTION", opts.Description)
	project.SubElement("SUBMISSION_PROJECT").SubElement("SEQUENCING_PROJECT")

	if opts.PubMedID != 0 {
		xref := project.SubElement("PROJECT_LINKS").SubElement("PROJECT_LINK").SubElement("XREF_LINK")
		xref.TextElement("DB", "PUBMED")
		xref.TextElement("ID", strconv.Itoa(opts.PubMedID))
	}

	attributes := project.SubElement("PROJECT_ATTRIBUTES")
	if opts.TPA {
		tpa := attributes.SubElement("PROJECT_ATTRIBUTE")
		tpa.TextElement("TAG", "study keyword")
		tpa.TextElement("VALUE", "TPA:assembly")
	}

	studyType := attributes.SubElement("PROJECT_ATTRIBUTE")
	studyType.TextElement("TAG", "new_study_type")
	studyType.TextElement("VALUE", opts.StudyType)

	return projectSet
}

// Submission builds the SUBMISSION document adding the registered objects.
// A non-empty holdUntil adds a HOLD action keeping them private until then.
func Submission(centerName, holdUntil string) *Element {
	submission := NewElement("SUBMISSION")
	submission.SetAttr("center_name", centerName)

	actions := submission.SubElement("ACTIONS")
	actions.SubElement("ACTION").SubElement("ADD")

	if holdUntil != "" {
		actions.SubElement("ACTION").SubElement("HOLD").SetAttr("HoldUntilDate", holdUntil)
	}

	return submission
}

// ReleaseSubmission builds the SUBMISSION_SET document that makes target
// public.
func ReleaseSubmission(target string) *Element {
	submissionSet := NewElement("SUBMISSION_SET")

	submissionSet.SubElement("SUBMISSION").
		SubElement("ACTIONS").
		SubElement("ACTION").
		SubElement("RELEASE").
		SetAttr("target", target)

	return submissionSet
}
