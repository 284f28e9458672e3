package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const crossrefFixture = `{
  "status": "ok",
  "message": {
    "items": [
      {
        "DOI": "10.1000/ABC.123",
        "title": ["Vitamin C and the  common cold"],
        "abstract": "<jats:title>Abstract</jats:title><jats:p>Regular <jats:italic>supplementation</jats:italic> shortened colds.</jats:p>",
        "author": [{"given": "Ada", "family": "Lovelace"}, {"name": "Cochrane Group"}],
        "issued": {"date-parts": [[2013, 1, 31]]},
        "URL": "https://doi.org/10.1000/abc.123"
      },
      {"DOI": "10.1000/empty", "title": [], "abstract": ""}
    ]
  }
}`

func TestCrossrefParse(t *testing.T) {
	records, err := NewCrossref(nil, "", "").Parse([]byte(crossrefFixture))
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "Vitamin C and the common cold", r.Title)
	assert.Equal(t, "Regular supplementation shortened colds.", r.Abstract)
	assert.Equal(t, "10.1000/abc.123", r.DOI)
	assert.Equal(t, 2013, r.Year)
	assert.Equal(t, []string{"Ada Lovelace", "Cochrane Group"}, r.Authors)
	assert.Equal(t, "crossref", r.Source)
}

const openAlexFixture = `{
  "results": [
    {
      "id": "https://openalex.org/W1",
      "doi": "https://doi.org/10.5555/XYZ",
      "title": "Garlic and blood pressure",
      "publication_year": 2020,
      "abstract_inverted_index": {"Garlic": [0], "lowers": [1], "blood": [2], "pressure": [3, 6], "modestly": [4], "and": [5]},
      "authorships": [{"author": {"display_name": "Grace Hopper"}}],
      "primary_location": {"landing_page_url": "https://example.org/garlic"}
    },
    {"id": "https://openalex.org/W2", "display_name": "Untitled work only by display name"}
  ]
}`

func TestOpenAlexParse(t *testing.T) {
	records, err := NewOpenAlex(nil, "", "").Parse([]byte(openAlexFixture))
	require.NoError(t, err)
	require.Len(t, records, 2)

	r := records[0]
	assert.Equal(t, "Garlic lowers blood pressure modestly and pressure", r.Abstract)
	assert.Equal(t, "10.5555/xyz", r.DOI)
	assert.Equal(t, "https://example.org/garlic", r.URL)
	assert.Equal(t, []string{"Grace Hopper"}, r.Authors)
	assert.Equal(t, 2020, r.Year)

	assert.Equal(t, "Untitled work only by display name", records[1].Title)
	assert.Equal(t, "https://openalex.org/W2", records[1].URL)
}

const arxivFixture = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:arxiv="http://arxiv.org/schemas/atom">
  <entry>
    <id>http://arxiv.org/abs/2101.00001v1</id>
    <published>2021-01-01T00:00:00Z</published>
    <title>Sleep deprivation
      and memory</title>
    <summary>  We study how sleep loss affects recall.  </summary>
    <author><name>Alan Turing</name></author>
    <author><name>Kurt Godel</name></author>
    <arxiv:doi>10.1234/Sleep.1</arxiv:doi>
    <link href="http://arxiv.org/abs/2101.00001v1" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/2101.00001v1" rel="related" type="application/pdf"/>
  </entry>
  <entry>
    <id>http://arxiv.org/api/errors#incorrect_id_format</id>
    <title>Error</title>
    <summary>incorrect id format</summary>
  </entry>
</feed>`

func TestArxivParse(t *testing.T) {
	records, err := NewArxiv(nil, "").Parse([]byte(arxivFixture))
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "Sleep deprivation and memory", r.Title)
	assert.Equal(t, "We study how sleep loss affects recall.", r.Abstract)
	assert.Equal(t, "10.1234/sleep.1", r.DOI)
	assert.Equal(t, 2021, r.Year)
	assert.Equal(t, []string{"Alan Turing", "Kurt Godel"}, r.Authors)
	assert.Equal(t, "http://arxiv.org/abs/2101.00001v1", r.URL)
	assert.Equal(t, "arxiv", r.Source)
}

const semanticFixture = `{
  "total": 2,
  "data": [
    {
      "paperId": "abc",
      "title": "Coffee and longevity",
      "abstract": "Moderate coffee intake was associated with lower mortality.",
      "year": 2018,
      "url": "https://www.semanticscholar.org/paper/abc",
      "externalIds": {"DOI": "10.9999/Coffee", "CorpusId": 42},
      "authors": [{"name": "Rosalind Franklin"}]
    },
    {"paperId": "def", "title": "No abstract here", "abstract": null, "year": null, "externalIds": null}
  ]
}`

func TestSemanticScholarParse(t *testing.T) {
	records, err := NewSemanticScholar(nil, "", "").Parse([]byte(semanticFixture))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "10.9999/coffee", records[0].DOI)
	assert.Equal(t, 2018, records[0].Year)
	assert.Equal(t, []string{"Rosalind Franklin"}, records[0].Authors)

	assert.Equal(t, "No abstract here", records[1].Title)
	assert.Empty(t, records[1].Abstract)
	assert.Empty(t, records[1].DOI)
	assert.Zero(t, records[1].Year)
}

func TestParse_Malformed(t *testing.T) {
	for _, s := range []Source{NewCrossref(nil, "", ""), NewOpenAlex(nil, "", ""), NewSemanticScholar(nil, "", ""), NewArxiv(nil, "")} {
		_, err := s.Parse([]byte("<<not a payload"))
		assert.Error(t, err, s.Name())
	}
}

func TestStripMarkup(t *testing.T) {
	assert.Equal(t, "a b c", StripMarkup("a <i>b</i>\n\tc"))
	assert.Equal(t, "Tom & Jerry", StripMarkup("Tom &amp; Jerry"))
	assert.Equal(t, "plain", StripMarkup("  plain  "))
}

func TestNormalizeDOI(t *testing.T) {
	assert.Equal(t, "10.1/abc", NormalizeDOI("https://doi.org/10.1/ABC"))
	assert.Equal(t, "10.1/abc", NormalizeDOI("DOI:10.1/abc"))
	assert.Equal(t, "10.1/abc", NormalizeDOI(" 10.1/Abc "))
	assert.Equal(t, "", NormalizeDOI(""))
}
