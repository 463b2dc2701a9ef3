package epub

// GetMetadata collects the OPF <metadata> block. Dublin Core elements fill the named
// fields; EPUB 2 <meta name content> and EPUB 3 <meta property>text</meta> entries go
// to OtherMeta.
func (b *Book) GetMetadata() *Metadata {
	metadata := &Metadata{}

	for _, item := range b.pkg.Metadata.Items {
		switch item.XMLName.Local {
		case "title":
			if metadata.Title == "" {
				metadata.Title = item.Content
			}
		case "creator":
			if metadata.Creator == "" {
				metadata.Creator = item.Content
			}
		case "publisher":
			metadata.Publisher = item.Content
		case "language":
			metadata.Language = item.Content
		case "identifier":
			if metadata.Identifier == "" {
				metadata.Identifier = item.Content
			}
		case "date":
			metadata.Date = item.Content
		case "description":
			metadata.Description = item.Content
		case "rights":
			metadata.Rights = item.Content
		case "meta":
			if name := attr(item.Attrs, "name"); name != "" {
				metadata.OtherMeta = append(metadata.OtherMeta, []string{name, attr(item.Attrs, "content")})
			} else if property := attr(item.Attrs, "property"); property != "" && item.Content != "" {
				metadata.OtherMeta = append(metadata.OtherMeta, []string{property, item.Content})
			}
		default:
			metadata.OtherMeta = append(metadata.OtherMeta, []string{item.XMLName.Local, item.Content})
		}
	}

	return metadata
}

// Rows returns the non-empty fields as label/value pairs for display
func (m *Metadata) Rows() [][]string {
	var rows [][]string
	add := func(label, value string) {
		if value != "" {
			rows = append(rows, []string{label, value})
		}
	}
	add("Title", m.Title)
	add("Creator", m.Creator)
	add("Publisher", m.Publisher)
	add("Language", m.Language)
	add("Identifier", m.Identifier)
	add("Date", m.Date)
	add("Description", m.Description)
	add("Rights", m.Rights)

	return append(rows, m.OtherMeta...)
}
