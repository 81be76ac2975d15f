package api

// Remote entity field sets. Decoding tolerates unknown or missing
// fields and matches names case-insensitively, per the API contract.

// Producto is a remote product record.
type Producto struct {
	ID           int64   `json:"id"`
	Descripcion  string  `json:"descripcion"`
	CodigoBarras string  `json:"codigoBarras"`
	Precio       float64 `json:"precio"`
	Costo        float64 `json:"costo"`
	Existencia   float64 `json:"existencia"`
}

// Cliente is a remote client record.
type Cliente struct {
	ID          int64  `json:"id"`
	Nombre      string `json:"nombre"`
	RazonSocial string `json:"razonSocial"`
	Correo      string `json:"correo"`
	Telefono    string `json:"telefono"`
	Direccion   string `json:"direccion"`
}

// Venta is a remote sale record.
type Venta struct {
	ID        int64   `json:"id"`
	ClienteID int64   `json:"clienteId"`
	Fecha     string  `json:"fecha"`
	Total     float64 `json:"total"`
	FormaPago string  `json:"formaPago"`
}

// DetalleVenta is a remote sale line-item record.
type DetalleVenta struct {
	ID             int64   `json:"id"`
	VentaID        int64   `json:"ventaId"`
	ProductoID     int64   `json:"productoId"`
	Cantidad       float64 `json:"cantidad"`
	PrecioUnitario float64 `json:"precioUnitario"`
	Importe        float64 `json:"importe"`
}

// credentialsPayload is the login request body.
type credentialsPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// tokenPayload is the login response body.
type tokenPayload struct {
	Token string `json:"token"`
}
