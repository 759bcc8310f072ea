package plex

// apiResponse wraps the MediaContainer for JSON unmarshaling.
type apiResponse struct {
	MediaContainer mediaContainer `json:"MediaContainer"`
}

type mediaContainer struct {
	Size      int         `json:"size"`
	Directory []directory `json:"Directory,omitempty"`
	Metadata  []metadata  `json:"Metadata,omitempty"`
}

// directory is a library section.
type directory struct {
	Key   string `json:"key"`
	Type  string `json:"type"`
	Title string `json:"title"`
}

// guid is an external identifier, e.g. "tmdb://603" or "imdb://tt0133093".
type guid struct {
	ID string `json:"id"`
}

// metadata is a media item: movie, show, season, or episode depending on
// the endpoint.
type metadata struct {
	RatingKey string  `json:"ratingKey"`
	Type      string  `json:"type"`
	Title     string  `json:"title"`
	Year      int     `json:"year,omitempty"`
	Index     int     `json:"index,omitempty"`
	Guids     []guid  `json:"Guid,omitempty"`
	Media     []media `json:"Media,omitempty"`
}

type media struct {
	Part []part `json:"Part,omitempty"`
}

type part struct {
	File string `json:"file,omitempty"`
}

// file returns the first media file path for the item, or "".
func (m metadata) file() string {
	for _, md := range m.Media {
		for _, p := range md.Part {
			if p.File != "" {
				return p.File
			}
		}
	}
	return ""
}
