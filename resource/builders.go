package resource

// List reads the collection: GET <root>[?query].
func List[T any](d Descriptor) Request[[]T] {
	return newRequest[[]T](d, MethodGet, d.URL)
}

// Detail reads one instance: GET <root>/<id>[?query].
func Detail[T any](d Descriptor) Request[T] {
	return newRequest[T](d, MethodGet, instanceURL(d))
}

// Create posts a new instance to the collection: POST <root>[?query].
func Create[T any](d Descriptor) Request[T] {
	return newRequest[T](d, MethodPost, d.URL)
}

// Update replaces one instance: PUT <root>/<id>.
func Update[T any](d Descriptor) Request[T] {
	return newRequest[T](d, MethodPut, instanceURL(d))
}

// PartialUpdate patches one instance: PATCH <root>/<id>.
func PartialUpdate[T any](d Descriptor) Request[T] {
	return newRequest[T](d, MethodPatch, instanceURL(d))
}

// Delete removes one instance: DELETE <root>/<id>.
func Delete[T any](d Descriptor) Request[T] {
	return newRequest[T](d, MethodDelete, instanceURL(d))
}

// instanceURL is d.URL with a mandatory id.
func instanceURL(d Descriptor) URLFunc {
	return func(p Params) (string, error) {
		id, ok, err := p.ID()
		if err != nil {
			return "", err
		}
		if !ok {
			return "", invalid(KindMissingID, IDKey, "%s requires a non-empty id parameter", d.name)
		}
		return d.render(p, id, true)
	}
}
