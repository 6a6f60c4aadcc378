// 版权所有 2024 eggmigrate Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 orm 基于 gorm 实现 migration.ORMControl，负责 egg Schema 版本簿记。

簿记表默认为 egg_schema_version（id、egg_name 唯一、version），可通过
WithTableName 覆盖。ManagedTransaction 将 gorm 事务放入 context，之后
的 DB(ctx) 调用与所有簿记操作都会加入该事务，因此领域迁移可直接使用
DB(ctx).Migrator() 或 Exec 执行 DDL。

支持 postgres、mysql 与 sqlite（github.com/glebarez/sqlite）方言。
*/
package orm
