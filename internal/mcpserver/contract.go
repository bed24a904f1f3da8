package mcpserver

// PublishingRules describes the vault layout and the rules the publish
// tools enforce, so LLM consumers can pick valid arguments.
const PublishingRules = `# Dispatch Publishing Rules

## Vault layout

- Only Markdown files (` + "`" + `.md` + "`" + `) under a ` + "`" + `blog/` + "`" + ` or ` + "`" + `drafts/` + "`" + ` directory are publishable.
- Files under ` + "`" + `week-notes/` + "`" + `, ` + "`" + `robot-notes/` + "`" + `, ` + "`" + `private/` + "`" + `, ` + "`" + `templates/` + "`" + `,
  ` + "`" + `attachments/` + "`" + `, ` + "`" + `_stale/` + "`" + ` or ` + "`" + `_archive/` + "`" + ` are never published, even inside ` + "`" + `blog/` + "`" + `.
- A document's **slug** is its filename without ` + "`" + `.md` + "`" + `. Slugs must be unique.

## Header

` + "```" + `markdown
---
date: 2025-01-15
tags: [writing, go]
dek: One-line subtitle
unlisted: false
---

# Title
` + "```" + `

The header is a flat ` + "`" + `key: value` + "`" + ` block. The title is the first ` + "`" + `#` + "`" + ` or ` + "`" + `##` + "`" + ` heading.

## Warnings

` + "`" + `scan_vault` + "`" + ` reports warnings per document. A document is safe to publish only when it has none:

- **No date**: the header has no ` + "`" + `date` + "`" + `.
- **Has TODOs**: the body contains TODO or FIXME.
- **Local images / Local media / Local video**: media is referenced by a local path instead of the CDN.
- **Broken link**: an attachment-style link that will not resolve on the site.
- **Long link text**: a link's visible text is longer than four words.
- **Modified since publish**: the vault copy differs from the published copy.

## Publishing

- ` + "`" + `publish_document` + "`" + ` copies the document to ` + "`" + `content/blog/<current-year>/<slug>.md` + "`" + ` and pushes.
  Republishing unchanged content is a no-op commit and succeeds.
- ` + "`" + `unpublish_document` + "`" + ` moves the published copy to ` + "`" + `content/blog/drafts/<slug>.md` + "`" + `.
  It fails if that draft already exists.
- Both fail before touching any file when the repository is on a detached HEAD or has merge conflicts.
- Only one publish or unpublish runs at a time; a concurrent call fails and should be retried later.
- Failures are never retried automatically. Report the error and its git output to the user.
`
