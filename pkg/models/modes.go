package models

// ContentModes is the catalogue of writing contexts offered to clients.
// Samples may carry modes outside this list.
var ContentModes = []string{
	"Personal Blog",
	"Work Blog",
	"LinkedIn",
	"Twitter",
	"Email",
	"Public Speaking",
	"Interview",
	"Code Comments",
}
