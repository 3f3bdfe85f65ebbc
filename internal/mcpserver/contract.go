package mcpserver

// BookFormatContract describes the catalog document and the book fields that
// LLM consumers should follow when adding books.
const BookFormatContract = `# Shelf Book Format

The catalog is one UTF-8 JSON document (default ` + "`" + `library.json` + "`" + `): an array of
book objects in insertion order, indented with two spaces, trailing newline.

## Book fields

| Key | Type | Rule |
|-----|------|------|
| ` + "`" + `id` + "`" + ` | string | UUID, assigned by Shelf, never changes |
| ` + "`" + `title` + "`" + ` | string | required, surrounding whitespace trimmed |
| ` + "`" + `author` + "`" + ` | string | required, surrounding whitespace trimmed |
| ` + "`" + `publication_year` + "`" + ` | integer | 1000 to the current year |
| ` + "`" + `genre` + "`" + ` | string | see genres; empty becomes ` + "`" + `Other` + "`" + ` |
| ` + "`" + `read_status` + "`" + ` | boolean | true once the book has been read |
| ` + "`" + `added_date` + "`" + ` | string | RFC 3339 UTC timestamp, assigned by Shelf |

## Genres

Known genres are matched case-insensitively and stored with their canonical
spelling (` + "`" + `science fiction` + "`" + ` becomes ` + "`" + `Science Fiction` + "`" + `). Any other non-empty genre is
kept as given. Use the list_books or library_stats tools to see which genres
are already in use.

## Rules

1. Use add_book to create records; never invent ` + "`" + `id` + "`" + ` or ` + "`" + `added_date` + "`" + `.
2. Duplicates are allowed. Search before adding if the user wants to avoid them.
3. Books are removed and updated by ` + "`" + `id` + "`" + `. Get ids from list_books or search_books.

## Example

` + "```" + `json
[
  {
    "id": "0b6f7c3e-2f57-4b6e-9d0b-3f1d3c9a2e11",
    "title": "The Hobbit",
    "author": "J.R.R. Tolkien",
    "publication_year": 1937,
    "genre": "Fantasy",
    "read_status": true,
    "added_date": "2025-06-01T12:00:00Z"
  }
]
` + "```" + `
`
