package prompt

// ResponseSchema is the JSON schema the model's reply must satisfy. It is
// substituted into the prompt verbatim and reused by the validator docs.
const ResponseSchema = `{
  "type": "object",
  "required": ["tool_name", "homepage", "publication_ids", "bio_subscores", "documentation_subscores", "confidence_score", "concise_description", "rationale"],
  "additionalProperties": false,
  "properties": {
    "tool_name": {"type": "string"},
    "homepage": {"type": "string"},
    "publication_ids": {"type": "array", "items": {"type": "string"}},
    "bio_subscores": {
      "type": "object",
      "required": ["A1", "A2", "A3", "A4", "A5"],
      "properties": {
        "A1": {"enum": [0, 0.5, 1]},
        "A2": {"enum": [0, 0.5, 1]},
        "A3": {"enum": [0, 0.5, 1]},
        "A4": {"enum": [0, 0.5, 1]},
        "A5": {"enum": [0, 0.5, 1]}
      }
    },
    "documentation_subscores": {
      "type": "object",
      "required": ["B1", "B2", "B3", "B4", "B5"],
      "properties": {
        "B1": {"enum": [0, 0.5, 1]},
        "B2": {"enum": [0, 0.5, 1]},
        "B3": {"enum": [0, 0.5, 1]},
        "B4": {"enum": [0, 0.5, 1]},
        "B5": {"enum": [0, 0.5, 1]}
      }
    },
    "confidence_score": {"type": "number", "minimum": 0, "maximum": 1},
    "concise_description": {"type": "string"},
    "rationale": {"type": "string"}
  }
}`

// DefaultTemplate is the embedded rubric prompt. Named {placeholder}
// tokens are substituted; every other brace is literal, so the rubric can
// spell out the score set {0, 0.5, 1} directly.
const DefaultTemplate = `You are evaluating a candidate software tool for inclusion in a curated
registry of life-science research software. Score it against the rubric
below and answer with a single JSON object matching the schema.

## Candidate

Tool name: {title}
Description: {description}
Homepage: {homepage}
Homepage fetch status: {homepage_status}
Homepage fetch error: {homepage_error}
Repository: {repository}
Documentation links:
{documentation}
Documentation keywords found on the homepage: {documentation_keywords}
Tags: {tags}
First published: {published_at}
Publication identifiers: {publication_ids}

Publication abstract:
{publication_abstract}

Publication full text (may be truncated):
{publication_full_text}

## Rubric

Each subscore must be exactly one of {0, 0.5, 1}.

Group A — life-science relevance:
- A1: The tool addresses a biological or biomedical research question.
- A2: Inputs or outputs are recognizable life-science data types.
- A3: The tool is associated with a peer-reviewed publication.
- A4: The described methods are scientifically plausible.
- A5: The tool is of use to researchers beyond its original authors.

Group B — documentation quality:
- B1: Documentation describes what the tool does and how to use it.
- B2: Installation or deployment instructions exist.
- B3: Examples, tutorials, or reproducible workflows are provided.
- B4: The project shows signs of maintenance.
- B5: A newcomer could get started from the available material alone.

Score strictly from the evidence above. When evidence for a criterion is
missing, score it 0. Set confidence_score in [0, 1] to reflect how much
evidence you had. Write concise_description as one registry-ready
sentence and rationale as a short justification of the scores.

## Response schema

{json_schema}

Answer with the JSON object only, no surrounding text.`
