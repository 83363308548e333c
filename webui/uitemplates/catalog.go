package uitemplates

import (
	"html/template"
	"time"
)

type CatalogParams struct {
	Attractions []CatalogAttraction
	LoadedAt    time.Time
}

type CatalogAttraction struct {
	ID           string
	Name         string
	Location     string
	ImageAddress string
	Reviews      []CatalogReview

	// ToggleLink expands or collapses this attraction's long reviews.
	ToggleLink string
	Expanded   bool
}

type CatalogReview struct {
	Rating    int
	Text      string
	Truncated bool
	Long      bool
}

var catalogText = `{{define "title"}}Attractions{{end}}

{{define "content"}}
<h1 class="my-4 text-center">Attractions</h1>
<div class="row">
{{range .Attractions}}
  <div class="col-md-4 mb-4" id="{{.ID}}">
    <div class="card h-100 text-center">
      <img src="{{.ImageAddress}}" alt="{{.Name}}" class="card-img-top img-fluid img-thumbnail" style="height: 150px; width: auto; object-fit: cover">
      <div class="card-body">
        <h5 class="card-title">{{.Name}}</h5>
        <p class="card-text">{{.Location}}</p>
        <div class="mt-3">
        {{$a := .}}
        {{range .Reviews}}
          <div class="mb-2">
            <p><strong>Rating:</strong> {{.Rating}} &#11088;</p>
            <p>
            {{if .Truncated}}
              {{.Text}}... <a href="{{$a.ToggleLink}}">Read More</a>
            {{else}}
              {{.Text}}
              {{if .Long}}<a href="{{$a.ToggleLink}}">Show Less</a>{{end}}
            {{end}}
            </p>
          </div>
        {{else}}
          <p class="text-muted">No reviews yet.</p>
        {{end}}
        </div>
      </div>
    </div>
  </div>
{{else}}
  <p>No attractions yet.</p>
{{end}}
</div>
{{end}}

{{define "footer"}}Updated {{.LoadedAt.Format "2006-01-02 15:04:05 MST"}}{{end}}
`

var CatalogTemplate = template.Must(template.Must(template.New("base").Parse(baseText)).Parse(catalogText))
