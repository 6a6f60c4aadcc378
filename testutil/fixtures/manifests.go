package fixtures

// NotesManifest is a single egg with one migration at 1.1.
const NotesManifest = `
root: notes
eggs:
  - name: notes
    versions:
      - number: "1.0"
      - number: "1.1"
        migrations: [Touch]
`
