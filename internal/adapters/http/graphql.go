package http

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"github.com/samirrijal/geosearch/internal/core/domain"
)

// jsonScalar passes free-form attribute maps through unchanged.
var jsonScalar = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "JSON",
	Description: "Arbitrary JSON value",
	Serialize:   func(v interface{}) interface{} { return v },
	ParseValue:  func(v interface{}) interface{} { return v },
	ParseLiteral: func(v ast.Value) interface{} {
		if s, ok := v.(*ast.StringValue); ok {
			var out interface{}
			if err := json.Unmarshal([]byte(s.Value), &out); err == nil {
				return out
			}
		}
		return nil
	},
})

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	latLngType := graphql.NewObject(graphql.ObjectConfig{
		Name: "LatLng",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lng": &graphql.Field{Type: graphql.Float},
		},
	})

	hitType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Hit",
		Fields: graphql.Fields{
			"objectID":   &graphql.Field{Type: graphql.String},
			"attributes": &graphql.Field{Type: jsonScalar},
			"geoloc": &graphql.Field{
				Type: latLngType,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if h, ok := p.Source.(domain.Hit); ok && h.Geoloc != nil {
						return h.Geoloc, nil
					}
					return nil, nil
				},
			},
			"position": &graphql.Field{
				Type: graphql.Int,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(domain.Hit).Position, nil
				},
			},
			"queryID": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(domain.Hit).QueryID, nil
				},
			},
			"geoDistance": &graphql.Field{
				Type:        graphql.Float,
				Description: "Distance to aroundLatLng in meters",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if d := p.Source.(domain.Hit).GeoDistance; d != nil {
						return *d, nil
					}
					return nil, nil
				},
			},
		},
	})

	resultsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "SearchResults",
		Fields: graphql.Fields{
			"index":            &graphql.Field{Type: graphql.String},
			"query":            &graphql.Field{Type: graphql.String},
			"queryID":          &graphql.Field{Type: graphql.String},
			"hits":             &graphql.Field{Type: graphql.NewList(hitType)},
			"nbHits":           &graphql.Field{Type: graphql.Int},
			"page":             &graphql.Field{Type: graphql.Int},
			"hitsPerPage":      &graphql.Field{Type: graphql.Int},
			"nbPages":          &graphql.Field{Type: graphql.Int},
			"processingTimeMS": &graphql.Field{Type: graphql.Int},
		},
	})

	recordType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Record",
		Fields: graphql.Fields{
			"objectID":   &graphql.Field{Type: graphql.String},
			"index":      &graphql.Field{Type: graphql.String},
			"attributes": &graphql.Field{Type: jsonScalar},
			"geoloc": &graphql.Field{
				Type: latLngType,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if r, ok := p.Source.(*domain.Record); ok && r.Geoloc != nil {
						return r.Geoloc, nil
					}
					return nil, nil
				},
			},
			"updatedAt": &graphql.Field{
				Type: graphql.DateTime,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(*domain.Record).UpdatedAt, nil
				},
			},
		},
	})

	indexType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Index",
		Fields: graphql.Fields{
			"name":       &graphql.Field{Type: graphql.String},
			"records":    &graphql.Field{Type: graphql.Int},
			"geolocated": &graphql.Field{Type: graphql.Int},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"geoSearch": &graphql.Field{
				Type:        resultsType,
				Description: "Search an index, optionally restricted to bounding boxes or a radius",
				Args: graphql.FieldConfigArgument{
					"index":             &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"query":             &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
					"insideBoundingBox": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
					"aroundLatLng":      &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
					"aroundRadius":      &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"page":              &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"hitsPerPage":       &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					params := domain.SearchParameters{
						Index:        p.Args["index"].(string),
						Query:        p.Args["query"].(string),
						AroundLatLng: p.Args["aroundLatLng"].(string),
						AroundRadius: p.Args["aroundRadius"].(int),
						Page:         p.Args["page"].(int),
						HitsPerPage:  p.Args["hitsPerPage"].(int),
					}
					if box := p.Args["insideBoundingBox"].(string); box != "" {
						params.InsideBoundingBox = domain.BoundingBoxText(box)
					}
					return deps.Search.Search(p.Context, params)
				},
			},
			"record": &graphql.Field{
				Type:        recordType,
				Description: "Get a record by object ID",
				Args: graphql.FieldConfigArgument{
					"index":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"objectID": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Search.GetRecord(p.Context, p.Args["index"].(string), p.Args["objectID"].(string))
				},
			},
			"indexes": &graphql.Field{
				Type:        graphql.NewList(indexType),
				Description: "List indexes",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Search.ListIndexes(p.Context)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
