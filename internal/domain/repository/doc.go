// Package repository define los contratos del vault persistente.
//
// El orquestador nunca es dueño del material secreto: lo lee y escribe a
// través de estas interfaces y no lo cachea más allá de un request. Los
// adapters viven en internal/store (pg para producción, memory para tests).
package repository
