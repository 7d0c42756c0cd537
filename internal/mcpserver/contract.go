package mcpserver

// RegionMarkerContract describes the region markers an editable component
// carries and how tools treat them.
const RegionMarkerContract = `# Kiln Region Marker Contract

A component file is editable when it carries all six region marker pairs.
Files missing any of them are reported as legacy and can be upgraded with
the ` + "`" + `markerize_file` + "`" + ` tool.

## Preamble regions

Inside the ` + "`" + `---` + "`" + ` delimited preamble, markers are line comments:

` + "```" + `astro
---
// region name="imports"
import Header from '../components/Header.astro';
// /region
const { title = "Site" } = Astro.props;
// region name="props"
/* {"title":{"type":"string","default":"Site"}} */
// /region
---
` + "```" + `

- **imports** wraps the first run of import statements.
- **props** holds a JSON object mapping each destructured prop to
  ` + "`" + `{"type": "string|number|boolean", "default": ...}` + "`" + `.

## Markup regions

In the markup, markers are HTML comments:

` + "```" + `html
<head>
  <!-- region name="head" -->
  <title>{title}</title>
  <!-- /region -->
</head>
<body>
  <!-- region name="pre-content" -->
  <Header />
  <!-- /region -->
  <!-- region name="content" single -->
  <slot />
  <!-- /region -->
  <!-- region name="post-content" -->
  <Footer />
  <!-- /region -->
</body>
` + "```" + `

- **head** wraps the inner content of ` + "`" + `<head>` + "`" + `.
- **content** wraps the single content slot and carries the ` + "`" + `single` + "`" + ` flag.
- **pre-content** and **post-content** wrap the body markup before and after it.

## Rules

1. Never remove or rename a marker. Text between markers is yours to edit.
2. Preamble values are edited through ` + "`" + `update_values` + "`" + `, which rewrites only
   the declarations whose values changed.
3. Values are JSON: null, booleans, numbers, strings, arrays and objects.
   Names must be valid identifiers and not reserved words.
4. Pass the checksum you read as ` + "`" + `if_match` + "`" + ` to avoid overwriting concurrent edits.
5. Markerizing is idempotent: running it on an upgraded file changes nothing.
`
